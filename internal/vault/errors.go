package vault

import "errors"

// Sentinel error values shared by the vault primitives. Higher layers
// match on these with errors.Is to pick the user-facing outcome: a
// missing hub becomes a 404, a natural-key collision a 409, and so on.

// ErrNotFound is returned when a hub row or satellite version does not
// exist for the requested key, natural key or timestamp.
var ErrNotFound = errors.New("vault: not found")

// ErrAlreadyExists is returned when inserting a hub whose natural key
// is already registered. Hub rows are written exactly once.
var ErrAlreadyExists = errors.New("vault: already exists")

// ErrConflict is returned when a revision loses a race: the row it
// meant to close was closed by a concurrent writer first. Callers may
// retry the whole operation against the new current row.
var ErrConflict = errors.New("vault: concurrent revision conflict")

// ErrNoLineage indicates a programming defect: revising or resolving
// an entity that has no satellite rows at all. A hub without at least
// one version is incompletely created and must not be surfaced.
var ErrNoLineage = errors.New("vault: entity has no satellite lineage")
