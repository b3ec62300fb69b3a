package model

import "time"

// Lifecycle status values carried by the sat_post_effectivity payload.
// A delete is itself a revision producing an open "Deleted" row; the
// content history underneath stays intact.
const (
	StatusActive  = "Active"
	StatusDeleted = "Deleted"
)

// Post is the assembled current view of a post: the hub identity, the
// open content version, the open lifecycle version and the (unversioned)
// author link resolved to its user hub. ContentSince is the
// record_start of the open content row, i.e. when the current version
// took effect.
type Post struct {
	HashKey        string    `json:"hash_key"`
	PostID         string    `json:"post_id"`
	Created        time.Time `json:"created"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	ContentSince   time.Time `json:"content_since"`
	Status         string    `json:"status"`
	AuthorHashKey  string    `json:"author_hash_key"`
	AuthorUsername string    `json:"author_username"`
}

// PostVersion is one historical content version. Current is true for
// the open row (record_end equals the sentinel).
type PostVersion struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	RecordStart time.Time `json:"record_start"`
	RecordEnd   time.Time `json:"record_end"`
	Current     bool      `json:"current"`
}
