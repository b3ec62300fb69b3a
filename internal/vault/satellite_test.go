package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostLineage(t *testing.T, s *Store) string {
	t.Helper()
	hub, err := InsertHub(context.Background(), s.DB(), testHubPost, Now(), "post-"+t.Name())
	require.NoError(t, err)
	return hub.HashKey
}

func openRowCount(t *testing.T, s *Store, sat Satellite, hashKey string) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM "+sat.Table+" WHERE "+sat.KeyCol+" = ? AND record_end = ?",
		hashKey, SentinelMicros()).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestAppendAndCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)
	start := Now()

	rec, err := AppendSatellite(ctx, s.DB(), testContent, key, start, "Hi", "Body")
	require.NoError(t, err)
	assert.True(t, rec.Open())

	cur, err := CurrentSatellite(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", "Body"}, cur.Payload)
	assert.True(t, cur.RecordStart.Equal(start))
	assert.True(t, cur.RecordEnd.Equal(Sentinel()))
}

func TestAppend_SecondOpenRowRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)

	_, err := AppendSatellite(ctx, s.DB(), testContent, key, Now(), "a", "b")
	require.NoError(t, err)

	// The schema-level unique index refuses a second open row even when
	// the protocol is bypassed.
	_, err = AppendSatellite(ctx, s.DB(), testContent, key, Now().Add(time.Second), "c", "d")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, openRowCount(t, s, testContent, key))
}

func TestClose_NoOpenRowIsLogicError(t *testing.T) {
	s := newTestStore(t)
	err := CloseSatellite(context.Background(), s.DB(), testContent, DeriveHashKey("ghost"), Now())
	assert.ErrorIs(t, err, ErrNoLineage)
}

func TestRevise_ClosesAndSupersedes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)
	t0 := Now()

	_, err := s.CreateVersion(ctx, testContent, key, t0, "Hi", "Body")
	require.NoError(t, err)

	t1 := t0.Add(50 * time.Millisecond)
	rec, err := s.Revise(ctx, testContent, key, t1, "Hi2", "Body2")
	require.NoError(t, err)
	assert.True(t, rec.RecordStart.Equal(t1))

	history, err := SatelliteHistory(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Most recent first; the head is the current row.
	assert.Equal(t, []string{"Hi2", "Body2"}, history[0].Payload)
	assert.True(t, history[0].Open())
	assert.Equal(t, []string{"Hi", "Body"}, history[1].Payload)
	assert.True(t, history[1].RecordEnd.Equal(t1), "old row closes exactly where the new one starts")
	assert.Equal(t, 1, openRowCount(t, s, testContent, key))
}

func TestRevise_NeverCreatedIsLogicError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Revise(context.Background(), testContent, DeriveHashKey("ghost"), Now(), "a", "b")
	assert.ErrorIs(t, err, ErrNoLineage)
}

func TestRevise_ClockCollisionBumpsStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)
	t0 := Now()

	_, err := s.CreateVersion(ctx, testContent, key, t0, "v1", "b")
	require.NoError(t, err)

	// Same instant, then an instant in the past: both must still yield
	// strictly increasing record_start values.
	r1, err := s.Revise(ctx, testContent, key, t0, "v2", "b")
	require.NoError(t, err)
	assert.True(t, r1.RecordStart.Equal(t0.Add(time.Microsecond)))

	r2, err := s.Revise(ctx, testContent, key, t0.Add(-time.Hour), "v3", "b")
	require.NoError(t, err)
	assert.True(t, r2.RecordStart.After(r1.RecordStart))

	history, err := SatelliteHistory(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].RecordStart.After(history[i].RecordStart),
			"history must be strictly decreasing by record_start")
	}
}

func TestRevise_StaleObservationConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)
	t0 := Now()

	_, err := s.CreateVersion(ctx, testContent, key, t0, "v1", "b")
	require.NoError(t, err)
	_, err = s.Revise(ctx, testContent, key, t0.Add(time.Second), "v2", "b")
	require.NoError(t, err)

	// A compare-and-swap against the superseded version misses: this is
	// the losing side of a concurrent revision race.
	ok, err := casClose(ctx, s.DB(), testContent, key, t0, Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, openRowCount(t, s, testContent, key))
}

func TestRevise_ConcurrentKeepsOneOpenRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)

	_, err := s.CreateVersion(ctx, testContent, key, Now(), "v0", "b")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Revise(ctx, testContent, key, Now(), "v", "b")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1, "at least one revision must win")
	assert.Equal(t, 1, openRowCount(t, s, testContent, key))

	history, err := SatelliteHistory(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	assert.Len(t, history, 1+succeeded, "every winning revision adds exactly one version")
}

func TestHistory_OrderAndHead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)
	t0 := Now()

	_, err := s.CreateVersion(ctx, testContent, key, t0, "v1", "b1")
	require.NoError(t, err)
	for i := 2; i <= 4; i++ {
		_, err := s.Revise(ctx, testContent, key, Now(), "v", "b")
		require.NoError(t, err)
	}

	history, err := SatelliteHistory(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	require.Len(t, history, 4)

	cur, err := CurrentSatellite(ctx, s.DB(), testContent, key)
	require.NoError(t, err)
	assert.Equal(t, cur, history[0])
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].RecordStart.After(history[i].RecordStart))
	}
}

func TestAsOf_PointInTimeReconstruction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := newPostLineage(t, s)

	t0 := Now()
	t1 := t0.Add(time.Minute)
	t2 := t1.Add(time.Minute)

	_, err := s.CreateVersion(ctx, testContent, key, t0, "v1", "b1")
	require.NoError(t, err)
	_, err = s.Revise(ctx, testContent, key, t1, "v2", "b2")
	require.NoError(t, err)
	_, err = s.Revise(ctx, testContent, key, t2, "v3", "b3")
	require.NoError(t, err)

	cases := []struct {
		at   time.Time
		want string
	}{
		{t0, "v1"},
		{t1.Add(-time.Microsecond), "v1"},
		{t1, "v2"}, // intervals are half-open: the boundary belongs to the successor
		{t2.Add(-time.Microsecond), "v2"},
		{t2, "v3"},
		{t2.Add(time.Hour), "v3"},
	}
	for _, tc := range cases {
		rec, err := SatelliteAsOf(ctx, s.DB(), testContent, key, tc.at)
		require.NoError(t, err)
		assert.Equal(t, tc.want, rec.Payload[0], "as of %s", tc.at)
	}

	_, err = SatelliteAsOf(ctx, s.DB(), testContent, key, t0.Add(-time.Second))
	assert.ErrorIs(t, err, ErrNotFound, "before the first version there is nothing")
}

func TestCurrent_SingleColumnPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hub, err := InsertHub(ctx, s.DB(), testHubUser, Now(), "alice")
	require.NoError(t, err)
	_, err = AppendSatellite(ctx, s.DB(), testAuth, hub.HashKey, Now(), "hash-1")
	require.NoError(t, err)

	cur, err := CurrentSatellite(ctx, s.DB(), testAuth, hub.HashKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"hash-1"}, cur.Payload)
}
