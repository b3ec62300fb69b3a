package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/vault-blog/internal/config"
	"github.com/iliyamo/vault-blog/internal/database"
	"github.com/iliyamo/vault-blog/internal/handler"
	"github.com/iliyamo/vault-blog/internal/repository"
	"github.com/iliyamo/vault-blog/internal/router"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// newTestServer wires the full route table against an embedded sqlite
// database. Redis is nil, so the cache and rate limiter pass through.
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v := vault.New(db)
	cfg := config.Config{
		Env:          "test",
		JWTSecret:    "test-secret",
		AccessTTLMin: 15,
		BcryptCost:   bcrypt.MinCost,
	}
	e := echo.New()
	router.Register(e, cfg,
		handler.NewAuthHandler(cfg, repository.NewAuthStore(v)),
		handler.NewBlogHandler(repository.NewBlogStore(v)),
		nil)
	return e
}

func doJSON(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// registerUser registers a user and returns the access token from the
// response.
func registerUser(t *testing.T, e *echo.Echo, username string) string {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/v1/auth/register", "",
		`{"username":"`+username+`","password":"secret"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Access.Token)
	return resp.Access.Token
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	rec := doJSON(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/auth/register", "",
		`{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The username is taken now.
	rec = doJSON(e, http.MethodPost, "/v1/auth/register", "",
		`{"username":"alice","password":"other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/auth/login", "",
		`{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		User struct {
			HashKey  string `json:"hash_key"`
			Username string `json:"username"`
		} `json:"user"`
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, vault.DeriveHashKey("alice"), resp.User.HashKey)
	require.NotEmpty(t, resp.Access.Token)

	// Wrong password and unknown user look identical to the client.
	rec = doJSON(e, http.MethodPost, "/v1/auth/login", "",
		`{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(e, http.MethodPost, "/v1/auth/login", "",
		`{"username":"nobody","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/me", resp.Access.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]string
	decode(t, rec, &me)
	assert.Equal(t, "alice", me["username"])
}

func TestRegisterValidation(t *testing.T) {
	e := newTestServer(t)
	for _, body := range []string{
		`{"username":"","password":"x"}`,
		`{"username":"a","password":""}`,
		`{"username":"   ","password":"x"}`,
	} {
		rec := doJSON(e, http.MethodPost, "/v1/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestWritesRequireToken(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/v1/posts", "", `{"title":"x","body":"y"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/posts", "not-a-jwt", `{"title":"x","body":"y"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostLifecycle(t *testing.T) {
	e := newTestServer(t)
	token := registerUser(t, e, "alice")

	rec := doJSON(e, http.MethodPost, "/v1/posts", token, `{"title":"Hi","body":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post struct {
		HashKey string `json:"hash_key"`
		PostID  string `json:"post_id"`
		Title   string `json:"title"`
		Status  string `json:"status"`
	}
	decode(t, rec, &post)
	assert.Len(t, post.HashKey, 64)
	assert.Equal(t, "Active", post.Status)

	rec = doJSON(e, http.MethodGet, "/v1/posts", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []struct {
		Title string `json:"title"`
	}
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "Hi", listed[0].Title)

	// Both identifiers resolve the same post.
	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.HashKey, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPut, "/v1/posts/"+post.PostID, token, `{"title":"Hi2","body":"second"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID+"/history", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []struct {
		Title   string `json:"title"`
		Current bool   `json:"current"`
	}
	decode(t, rec, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "Hi2", history[0].Title)
	assert.True(t, history[0].Current)
	assert.Equal(t, "Hi", history[1].Title)
	assert.False(t, history[1].Current)

	rec = doJSON(e, http.MethodDelete, "/v1/posts/"+post.PostID, token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/posts", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &listed)
	assert.Empty(t, listed)

	// The deleted post still resolves directly and keeps its history.
	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &post)
	assert.Equal(t, "Deleted", post.Status)
	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID+"/history", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPostValidationAndNotFound(t *testing.T) {
	e := newTestServer(t)
	token := registerUser(t, e, "alice")

	rec := doJSON(e, http.MethodPost, "/v1/posts", token, `{"title":"  ","body":"y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/posts/no-such-post", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodPut, "/v1/posts/no-such-post", token, `{"title":"x","body":"y"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/posts/no-such-post/history", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditByNonAuthor(t *testing.T) {
	e := newTestServer(t)
	alice := registerUser(t, e, "alice")
	bob := registerUser(t, e, "bob")

	rec := doJSON(e, http.MethodPost, "/v1/posts", alice, `{"title":"Hi","body":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var post struct {
		PostID string `json:"post_id"`
	}
	decode(t, rec, &post)

	rec = doJSON(e, http.MethodPut, "/v1/posts/"+post.PostID, bob, `{"title":"stolen","body":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(e, http.MethodDelete, "/v1/posts/"+post.PostID, bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHistoryAsOfValidation(t *testing.T) {
	e := newTestServer(t)
	token := registerUser(t, e, "alice")

	rec := doJSON(e, http.MethodPost, "/v1/posts", token, `{"title":"Hi","body":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var post struct {
		PostID string `json:"post_id"`
	}
	decode(t, rec, &post)

	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID+"/history?as_of=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/v1/posts/"+post.PostID+"/history?as_of=2999-01-01T00:00:00Z", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var version struct {
		Title   string `json:"title"`
		Current bool   `json:"current"`
	}
	decode(t, rec, &version)
	assert.Equal(t, "Hi", version.Title)
	assert.True(t, version.Current)
}

func TestChangePassword(t *testing.T) {
	e := newTestServer(t)
	token := registerUser(t, e, "alice")

	rec := doJSON(e, http.MethodPost, "/v1/auth/password", token, `{"current":"secret","new":"rotated"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/v1/auth/login", "", `{"username":"alice","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(e, http.MethodPost, "/v1/auth/login", "", `{"username":"alice","password":"rotated"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong current password is rejected without a revision.
	rec = doJSON(e, http.MethodPost, "/v1/auth/password", token, `{"current":"nope","new":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
