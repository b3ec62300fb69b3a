package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vault-blog/internal/config"
	"github.com/iliyamo/vault-blog/internal/middleware"
	"github.com/iliyamo/vault-blog/internal/repository"
	"github.com/iliyamo/vault-blog/internal/utils"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg   config.Config
	Users *repository.AuthStore
}

func NewAuthHandler(cfg config.Config, u *repository.AuthStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u}
}

// ----- DTOs -----

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type changePasswordReq struct {
	Current string `json:"current"`
	New     string `json:"new"`
}
type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	HashKey  string `json:"hash_key"`
	Username string `json:"username"`
}
type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

// Register creates a user and returns a token immediately. Input
// validation happens here, before the core is touched; empty fields
// never reach the store.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.Register(ctx, req.Username, hash)
	if err != nil {
		if errors.Is(err, vault.ErrAlreadyExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already registered"})
		}
		return writeError(c, err)
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.HashKey, user.Username, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{HashKey: user.HashKey, Username: user.Username},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Login verifies the candidate password against the current credential
// version and returns a fresh token. Unknown usernames and wrong
// passwords are indistinguishable to the client.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, storedHash, err := h.Users.Credentials(ctx, req.Username)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return writeError(c, err)
	}
	if !utils.VerifyPassword(storedHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.HashKey, user.Username, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{HashKey: user.HashKey, Username: user.Username},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// ChangePassword supersedes the caller's current credential version.
// Every prior hash stays in the satellite history.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Current == "" || req.New == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current/new required"})
	}
	hashKey, _ := c.Get(middleware.CtxUserHashKey).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	storedHash, err := h.Users.CurrentPasswordHash(ctx, hashKey)
	if err != nil {
		return writeError(c, err)
	}
	if !utils.VerifyPassword(storedHash, req.Current) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	newHash, err := utils.HashPassword(req.New, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}
	if err := h.Users.ChangePassword(ctx, hashKey, newHash); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated identity carried by the token.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_hash_key": c.Get(middleware.CtxUserHashKey),
		"username":      c.Get(middleware.CtxUsername),
	})
}
