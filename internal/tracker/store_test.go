package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	return s, path
}

func TestStoreStartsEmptyWithoutFile(t *testing.T) {
	s, _ := tempStore(t)
	p, err := s.Get("27~1")
	require.NoError(t, err)
	assert.Empty(t, p.LastDate)
	assert.Empty(t, p.FailedDates)
}

func TestStoreCheckpointPersistsAndReloads(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{LastDate: "2024-06-28"}))
	require.NoError(t, s.Checkpoint("16~1", crawler.CourtProgress{
		LastDate:    "2024-06-27",
		FailedDates: []string{"2024-06-01"},
	}))

	reloaded, err := NewStore(path)
	require.NoError(t, err)

	p, err := reloaded.Get("27~1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-28", p.LastDate)

	p, err = reloaded.Get("16~1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-01"}, p.FailedDates)
}

func TestStoreLastDateNeverMovesBackwards(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{LastDate: "2024-06-28"}))
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{LastDate: "2024-06-20"}))

	p, err := s.Get("27~1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-28", p.LastDate)
}

func TestStoreFailedDatesAccumulateWithoutDuplicates(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{FailedDates: []string{"2024-06-02"}}))
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{FailedDates: []string{"2024-06-01", "2024-06-02"}}))

	p, err := s.Get("27~1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-01", "2024-06-02"}, p.FailedDates)
}

func TestStoreClearFailure(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{FailedDates: []string{"2024-06-01", "2024-06-02"}}))
	require.NoError(t, s.ClearFailure("27~1", "2024-06-01"))

	p, err := s.Get("27~1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-02"}, p.FailedDates)
}

func TestStoreWritesWellFormedJSONFile(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{LastDate: "2024-06-28"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]crawler.CourtProgress
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2024-06-28", decoded["27~1"].LastDate)

	// No temp files are left behind by the atomic replace.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path)
	assert.Error(t, err)
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.Checkpoint("27~1", crawler.CourtProgress{FailedDates: []string{"2024-06-01"}}))

	snap := s.Snapshot()
	snap["27~1"].FailedDates[0] = "mutated"

	p, err := s.Get("27~1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-01"}, p.FailedDates)
}
