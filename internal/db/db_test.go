// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackopt/internal/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndSearch(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	reports := []*Report{
		{Name: "token", Hash: "aa", OriginalSize: 10, OptimizedSize: 8, Removed: 2, Timestamp: base},
		{Name: "token-v2", Hash: "bb", Fallback: true, ErrorMsg: "optimization failed", Timestamp: base.Add(time.Minute)},
		{Name: "oracle", Hash: "aa", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range reports {
		require.NoError(t, s.SaveReport(r))
		assert.NotZero(t, r.ID)
	}

	all, err := s.SearchReports(SearchParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "oracle", all[0].Name, "newest first")
	assert.Equal(t, base, all[2].Timestamp)
	assert.Equal(t, 8, all[2].OptimizedSize)

	byHash, err := s.SearchReports(SearchParams{Hash: "aa"})
	require.NoError(t, err)
	assert.Len(t, byHash, 2)

	byName, err := s.SearchReports(SearchParams{NameRegex: "^token"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	fallback, err := s.SearchReports(SearchParams{FallbackOnly: true})
	require.NoError(t, err)
	require.Len(t, fallback, 1)
	assert.Equal(t, "optimization failed", fallback[0].ErrorMsg)

	limited, err := s.SearchReports(SearchParams{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchInvalidRegex(t *testing.T) {
	s := newStore(t)
	_, err := s.SearchReports(SearchParams{NameRegex: "("})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestPrune(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	require.NoError(t, s.SaveReport(&Report{Name: "old", Hash: "1", Timestamp: now.Add(-72 * time.Hour)}))
	require.NoError(t, s.SaveReport(&Report{Name: "older", Hash: "2", Timestamp: now.Add(-96 * time.Hour)}))
	require.NoError(t, s.SaveReport(&Report{Name: "new", Hash: "3", Timestamp: now}))

	cutoff := now.Add(-24 * time.Hour)
	n, err := s.Prune(cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 3, countRows(t, s))

	n, err = s.Prune(cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, err := s.SearchReports(SearchParams{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Name)
}

func TestInitDBCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	s, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveReport(&Report{Name: "x", Hash: "y"}))
	require.NoError(t, s.Close())

	s, err = InitDB(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.SearchReports(SearchParams{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
