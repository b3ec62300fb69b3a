package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vault-blog/internal/repository"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// writeError maps the store error taxonomy to HTTP responses. Conflicts
// from racing revisions get a 409 so clients can retry the whole edit
// against the new current version.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, vault.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	case errors.Is(err, vault.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "concurrent edit, retry"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		// vault.ErrNoLineage lands here: an invariant violation is a
		// server defect, never silently ignored.
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
