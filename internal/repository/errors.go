// Package repository exposes the gateway-facing stores built on top of
// the vault primitives. The sentinel errors here complete the vault's
// taxonomy with the failures only this layer can detect; handlers match
// both sets with errors.Is to choose HTTP status codes.
package repository

import "errors"

// ErrForbidden is returned when the acting user is not the author of
// the post being edited or deleted. Handlers translate this into an
// HTTP 403 response; it is never retried.
var ErrForbidden = errors.New("forbidden")
