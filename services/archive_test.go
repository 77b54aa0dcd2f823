package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memObjectStore struct {
	objects map[string][]byte
	err     error
}

func (s *memObjectStore) PutObject(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "leaderboards/2026-10.json", SnapshotKey("2026-10"))
	assert.Equal(t, "leaderboards/week-42-eu.json", SnapshotKey("Week 42/EU"))
}

func TestArchiveUploadsRankedSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	mustComplete(t, e, completion("a", period, "a1", 5000, "win", oct(1)))
	mustComplete(t, e, completion("b", period, "b1", -100, "loss", oct(1)))

	store := &memObjectStore{objects: map[string][]byte{}}
	url, err := NewArchiver(e, store, zap.NewNop()).Archive(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/leaderboards/2026-10.json", url)

	var snap LeaderboardSnapshot
	require.NoError(t, json.Unmarshal(store.objects["leaderboards/2026-10.json"], &snap))
	assert.Equal(t, period, snap.PeriodKey)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "a", snap.Entries[0].UserID)
	assert.Equal(t, 2, *snap.Entries[1].Rank)
}

func TestArchiveStoreFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	mustComplete(t, e, completion("a", period, "a1", 1, "win", oct(1)))

	store := &memObjectStore{err: errors.New("bucket unavailable")}
	_, err := NewArchiver(e, store, zap.NewNop()).Archive(context.Background(), period)
	assert.ErrorContains(t, err, "bucket unavailable")

	_, err = NewArchiver(e, store, zap.NewNop()).Archive(context.Background(), "")
	assert.True(t, IsValidation(err))
}
