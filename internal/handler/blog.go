package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vault-blog/internal/middleware"
	"github.com/iliyamo/vault-blog/internal/model"
	"github.com/iliyamo/vault-blog/internal/queue"
	"github.com/iliyamo/vault-blog/internal/repository"
	queue_publisher "github.com/iliyamo/vault-blog/internal/service"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// BlogHandler bundles dependencies for the post endpoints.
type BlogHandler struct {
	Posts *repository.BlogStore
}

func NewBlogHandler(p *repository.BlogStore) *BlogHandler {
	return &BlogHandler{Posts: p}
}

type postReq struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// List returns all currently active posts, newest first.
func (h *BlogHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	posts, err := h.Posts.ListActive(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

// resolve looks a post up by its uuid natural key, falling back to the
// surrogate hash key so clients holding either identifier can use the
// same routes. Deleted posts still resolve; history is never hidden.
func (h *BlogHandler) resolve(ctx context.Context, id string) (model.Post, error) {
	post, err := h.Posts.ByPostID(ctx, id)
	if errors.Is(err, vault.ErrNotFound) && len(id) == 64 {
		return h.Posts.ByHashKey(ctx, id)
	}
	return post, err
}

// Get returns the assembled current view of one post.
func (h *BlogHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	post, err := h.resolve(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

// History returns the content versions of a post, most recent first.
// With ?as_of=<RFC3339> it instead returns the single version valid at
// that instant.
func (h *BlogHandler) History(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	post, err := h.resolve(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if asOf := c.QueryParam("as_of"); asOf != "" {
		t, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "as_of must be RFC3339"})
		}
		version, err := h.Posts.ContentAsOf(ctx, post.HashKey, t)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, version)
	}
	versions, err := h.Posts.ContentHistory(ctx, post.HashKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, versions)
}

// Create writes a new post authored by the authenticated user.
func (h *BlogHandler) Create(c echo.Context) error {
	var req postReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	actor, _ := c.Get(middleware.CtxUserHashKey).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	post, err := h.Posts.Create(ctx, actor, req.Title, req.Body)
	if err != nil {
		return writeError(c, err)
	}
	_ = queue_publisher.PublishPostEvent(ctx, postEvent(queue.ActionCreated, post))
	return c.JSON(http.StatusCreated, post)
}

// Update supersedes the post's content with a new version. Only the
// author may edit; prior versions stay queryable via History.
func (h *BlogHandler) Update(c echo.Context) error {
	var req postReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	actor, _ := c.Get(middleware.CtxUserHashKey).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	post, err := h.resolve(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	post, err = h.Posts.Edit(ctx, post.HashKey, actor, req.Title, req.Body)
	if err != nil {
		return writeError(c, err)
	}
	_ = queue_publisher.PublishPostEvent(ctx, postEvent(queue.ActionEdited, post))
	return c.JSON(http.StatusOK, post)
}

// Delete marks the post deleted. The hub and its full history remain;
// the post only disappears from active listings.
func (h *BlogHandler) Delete(c echo.Context) error {
	actor, _ := c.Get(middleware.CtxUserHashKey).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	post, err := h.resolve(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Posts.Delete(ctx, post.HashKey, actor); err != nil {
		return writeError(c, err)
	}
	_ = queue_publisher.PublishPostEvent(ctx, postEvent(queue.ActionDeleted, post))
	return c.NoContent(http.StatusNoContent)
}

func postEvent(action string, p model.Post) queue.PostEvent {
	return queue.PostEvent{
		Action:         action,
		PostHashKey:    p.HashKey,
		PostID:         p.PostID,
		Title:          p.Title,
		AuthorHashKey:  p.AuthorHashKey,
		AuthorUsername: p.AuthorUsername,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
}
