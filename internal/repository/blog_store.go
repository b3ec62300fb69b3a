package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vault-blog/internal/model"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// Vault descriptors for the post entity. link_author is a link hub: its
// natural key is the (post hash key, user hash key) pair and it carries
// no satellite - authorship is created once and never revoked.
var (
	hubPost = vault.Hub{
		Table:       "hub_post",
		KeyCol:      "post_hash_key",
		NaturalCols: []string{"post_id"},
	}
	linkAuthor = vault.Hub{
		Table:       "link_author",
		KeyCol:      "author_hash_key",
		NaturalCols: []string{"post_hash_key", "user_hash_key"},
	}
	satPostContent = vault.Satellite{
		Table:       "sat_post_content",
		KeyCol:      "post_hash_key",
		PayloadCols: []string{"title", "body"},
	}
	satPostEffectivity = vault.Satellite{
		Table:       "sat_post_effectivity",
		KeyCol:      "post_hash_key",
		PayloadCols: []string{"post_status"},
	}
)

// BlogStore persists posts, their authorship links and the full history
// of content and lifecycle changes.
type BlogStore struct {
	vault *vault.Store
}

func NewBlogStore(v *vault.Store) *BlogStore { return &BlogStore{vault: v} }

// assembleQuery joins a post hub with its open content and lifecycle
// versions and the author link. The sentinel is bound as a parameter at
// call time, so "current" is always evaluated against the executing
// query, never a value frozen at startup.
const assembleQuery = `SELECT p.post_hash_key, p.post_id, p.created,
       c.title, c.body, c.record_start,
       e.post_status,
       u.user_hash_key, u.username
FROM hub_post p
JOIN sat_post_content c ON c.post_hash_key = p.post_hash_key AND c.record_end = ?
JOIN sat_post_effectivity e ON e.post_hash_key = p.post_hash_key AND e.record_end = ?
JOIN link_author l ON l.post_hash_key = p.post_hash_key
JOIN hub_user u ON u.user_hash_key = l.user_hash_key`

func scanPost(sc interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var createdUs, sinceUs int64
	err := sc.Scan(
		&p.HashKey, &p.PostID, &createdUs,
		&p.Title, &p.Body, &sinceUs,
		&p.Status,
		&p.AuthorHashKey, &p.AuthorUsername,
	)
	if err != nil {
		return model.Post{}, err
	}
	p.Created = vault.FromMicros(createdUs)
	p.ContentSince = vault.FromMicros(sinceUs)
	return p, nil
}

// Create writes a complete new post as one atomic unit: the post hub
// (natural key is a fresh uuid), the author link, the first content
// version and an open "Active" lifecycle version.
func (s *BlogStore) Create(ctx context.Context, authorHashKey, title, body string) (model.Post, error) {
	author, err := vault.HubByHashKey(ctx, s.vault.DB(), hubUser, authorHashKey)
	if err != nil {
		return model.Post{}, fmt.Errorf("author %q: %w", authorHashKey, err)
	}
	postID := uuid.NewString()
	now := vault.Now()
	var post model.Post
	err = s.vault.WithTx(ctx, func(tx *sql.Tx) error {
		hub, err := vault.InsertHub(ctx, tx, hubPost, now, postID)
		if err != nil {
			return err
		}
		if _, err := vault.InsertHub(ctx, tx, linkAuthor, now, hub.HashKey, author.HashKey); err != nil {
			return err
		}
		if _, err := vault.AppendSatellite(ctx, tx, satPostContent, hub.HashKey, now, title, body); err != nil {
			return err
		}
		if _, err := vault.AppendSatellite(ctx, tx, satPostEffectivity, hub.HashKey, now, model.StatusActive); err != nil {
			return err
		}
		post = model.Post{
			HashKey:        hub.HashKey,
			PostID:         postID,
			Created:        now,
			Title:          title,
			Body:           body,
			ContentSince:   now,
			Status:         model.StatusActive,
			AuthorHashKey:  author.HashKey,
			AuthorUsername: author.Natural[0],
		}
		return nil
	})
	if err != nil {
		return model.Post{}, err
	}
	return post, nil
}

// Edit supersedes the current content version. The actor must be the
// post's author. An edit carrying the same title and body as the
// current version still produces a new version; the store does not
// deduplicate no-op edits.
func (s *BlogStore) Edit(ctx context.Context, postHashKey, actorHashKey, title, body string) (model.Post, error) {
	if err := s.requireAuthor(ctx, postHashKey, actorHashKey); err != nil {
		return model.Post{}, err
	}
	if _, err := s.vault.Revise(ctx, satPostContent, postHashKey, vault.Now(), title, body); err != nil {
		return model.Post{}, err
	}
	return s.ByHashKey(ctx, postHashKey)
}

// Delete marks the post deleted by revising its lifecycle satellite:
// the "Active" row is closed and an open "Deleted" row appended.
// Nothing is physically removed; content history stays reachable.
func (s *BlogStore) Delete(ctx context.Context, postHashKey, actorHashKey string) error {
	if err := s.requireAuthor(ctx, postHashKey, actorHashKey); err != nil {
		return err
	}
	_, err := s.vault.Revise(ctx, satPostEffectivity, postHashKey, vault.Now(), model.StatusDeleted)
	return err
}

// requireAuthor distinguishes a missing post (vault.ErrNotFound) from a
// post owned by someone else (ErrForbidden).
func (s *BlogStore) requireAuthor(ctx context.Context, postHashKey, actorHashKey string) error {
	if _, err := vault.HubByHashKey(ctx, s.vault.DB(), hubPost, postHashKey); err != nil {
		return err
	}
	_, err := vault.HubByNaturalKey(ctx, s.vault.DB(), linkAuthor, postHashKey, actorHashKey)
	if errors.Is(err, vault.ErrNotFound) {
		return fmt.Errorf("post %q actor %q: %w", postHashKey, actorHashKey, ErrForbidden)
	}
	return err
}

// ListActive returns the assembled views of all posts whose current
// lifecycle status is Active, newest hub first.
func (s *BlogStore) ListActive(ctx context.Context) ([]model.Post, error) {
	query := assembleQuery + " WHERE e.post_status = ? ORDER BY p.created DESC, p.post_hash_key"
	rows, err := s.vault.DB().QueryContext(ctx, query,
		vault.SentinelMicros(), vault.SentinelMicros(), model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	posts := make([]model.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// ByHashKey assembles the view for one post regardless of lifecycle
// status. A hub with no open content or lifecycle row never assembles
// and reports vault.ErrNotFound.
func (s *BlogStore) ByHashKey(ctx context.Context, postHashKey string) (model.Post, error) {
	return s.assembleOne(ctx, assembleQuery+" WHERE p.post_hash_key = ?", postHashKey)
}

// ByPostID assembles the view for a post looked up by its uuid natural key.
func (s *BlogStore) ByPostID(ctx context.Context, postID string) (model.Post, error) {
	return s.assembleOne(ctx, assembleQuery+" WHERE p.post_id = ?", postID)
}

func (s *BlogStore) assembleOne(ctx context.Context, query, arg string) (model.Post, error) {
	row := s.vault.DB().QueryRowContext(ctx, query,
		vault.SentinelMicros(), vault.SentinelMicros(), arg)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, fmt.Errorf("post %q: %w", arg, vault.ErrNotFound)
		}
		return model.Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// ContentHistory returns every content version of a post, most recent
// first. The head of a non-empty history is the current version.
func (s *BlogStore) ContentHistory(ctx context.Context, postHashKey string) ([]model.PostVersion, error) {
	if _, err := vault.HubByHashKey(ctx, s.vault.DB(), hubPost, postHashKey); err != nil {
		return nil, err
	}
	recs, err := vault.SatelliteHistory(ctx, s.vault.DB(), satPostContent, postHashKey)
	if err != nil {
		return nil, err
	}
	versions := make([]model.PostVersion, len(recs))
	for i, r := range recs {
		versions[i] = model.PostVersion{
			Title:       r.Payload[0],
			Body:        r.Payload[1],
			RecordStart: r.RecordStart,
			RecordEnd:   r.RecordEnd,
			Current:     r.Open(),
		}
	}
	return versions, nil
}

// ContentAsOf reconstructs the content version that was valid at t.
func (s *BlogStore) ContentAsOf(ctx context.Context, postHashKey string, t time.Time) (model.PostVersion, error) {
	r, err := vault.SatelliteAsOf(ctx, s.vault.DB(), satPostContent, postHashKey, t)
	if err != nil {
		return model.PostVersion{}, err
	}
	return model.PostVersion{
		Title:       r.Payload[0],
		Body:        r.Payload[1],
		RecordStart: r.RecordStart,
		RecordEnd:   r.RecordEnd,
		Current:     r.Open(),
	}, nil
}
