package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vault-blog/internal/config"
	"github.com/iliyamo/vault-blog/internal/database"
	"github.com/iliyamo/vault-blog/internal/handler"
	"github.com/iliyamo/vault-blog/internal/queue"
	"github.com/iliyamo/vault-blog/internal/repository"
	"github.com/iliyamo/vault-blog/internal/router"
	"github.com/iliyamo/vault-blog/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	dsn := cfg.DBPath
	if cfg.DBDriver == "mysql" {
		dsn = database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	db, err := database.Open(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	store := vault.New(db)
	users := repository.NewAuthStore(store)
	posts := repository.NewBlogStore(store)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Print("redis unavailable; cache and rate limiting disabled")
	}

	go queue.StartPostActivityConsumer()

	e := echo.New()
	router.Register(e, cfg, handler.NewAuthHandler(cfg, users), handler.NewBlogHandler(posts), rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, db=%s)", addr, cfg.Env, cfg.DBDriver)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
