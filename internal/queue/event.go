// Package queue defines the message payloads exchanged over the broker
// and the background consumer that records them.
package queue

// Post lifecycle actions carried by PostEvent.
const (
	ActionCreated = "created"
	ActionEdited  = "edited"
	ActionDeleted = "deleted"
)

// PostEvent is published whenever a post is created, edited or marked
// deleted. It carries enough for downstream consumers to log or notify
// without querying the primary database.
type PostEvent struct {
	Action         string `json:"action"`
	PostHashKey    string `json:"post_hash_key"`
	PostID         string `json:"post_id"`
	Title          string `json:"title"`
	AuthorHashKey  string `json:"author_hash_key"`
	AuthorUsername string `json:"author_username"`
	OccurredAt     string `json:"occurred_at"`
}
