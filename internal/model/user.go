package model

import "time"

// User is the assembled current view of a user: the immutable hub
// identity plus the username natural key. Credential material stays
// inside the repository layer and is never part of this view.
type User struct {
	HashKey  string
	Username string
	Created  time.Time
}
