package mappings_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/micro-nova/amplipi-rfid/internal/mappings"
	"github.com/micro-nova/amplipi-rfid/internal/models"
)

func openStore(t *testing.T, fallback map[string]string) (*mappings.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappings.db")
	s, err := mappings.Open(mappings.Options{DSN: path, Fallback: fallback})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s, _ := openStore(t, nil)

	actions := map[string]models.Action{
		"1":   models.PlayURI("spotify:album:xyz"),
		"22":  models.TogglePlay(),
		"333": models.Stop(),
	}
	for tag, a := range actions {
		require.NoError(t, s.Set(tag, a, "desc "+tag))
	}
	for tag, a := range actions {
		got, ok := s.Get(tag)
		require.True(t, ok, "Get(%s)", tag)
		assert.Equal(t, a, got.Action)
		assert.Equal(t, "desc "+tag, got.Description)
		assert.Equal(t, models.SourceStore, got.Source)
	}
}

func TestStore_SetIsIdempotentUpsert(t *testing.T) {
	s, _ := openStore(t, nil)

	require.NoError(t, s.Set("5", models.PlayURI("a"), "first"))
	require.NoError(t, s.Set("5", models.PlayURI("a"), "first"))
	require.NoError(t, s.Set("5", models.PlayURI("b"), "second"))

	got, ok := s.Get("5")
	require.True(t, ok)
	assert.Equal(t, models.PlayURI("b"), got.Action)
	assert.Equal(t, "second", got.Description)
	assert.Len(t, s.ListAll(), 1)
}

func TestStore_SetRejectsEmpty(t *testing.T) {
	s, _ := openStore(t, nil)
	assert.ErrorIs(t, s.Set("", models.Stop(), ""), models.ErrStore)
	assert.ErrorIs(t, s.Set("7", models.PlayURI(""), ""), models.ErrStore)
}

func TestStore_DeleteFallsBackToConfig(t *testing.T) {
	s, _ := openStore(t, map[string]string{"10": "STOP"})

	require.NoError(t, s.Set("10", models.PlayURI("x"), ""))
	require.NoError(t, s.Set("11", models.PlayURI("y"), ""))

	assert.True(t, s.Delete("10"))
	assert.False(t, s.Delete("10"), "second delete of the same tag")
	assert.False(t, s.Delete("999"), "delete of an absent tag")

	got, ok := s.Get("10")
	require.True(t, ok)
	assert.Equal(t, models.Stop(), got.Action)
	assert.Equal(t, models.SourceConfig, got.Source)

	assert.True(t, s.Delete("11"))
	_, ok = s.Get("11")
	assert.False(t, ok)
}

func TestStore_ListAllMergesWithStorePrecedence(t *testing.T) {
	s, _ := openStore(t, map[string]string{
		"1": "spotify:track:config",
		"2": "TOGGLE_PLAY",
		"3": "",
	})
	require.NoError(t, s.Set("1", models.PlayURI("spotify:track:stored"), "mine"))
	require.NoError(t, s.Set("4", models.Stop(), ""))

	all := s.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, models.PlayURI("spotify:track:stored"), all["1"].Action)
	assert.Equal(t, models.SourceStore, all["1"].Source)
	assert.Equal(t, models.TogglePlay(), all["2"].Action)
	assert.Equal(t, models.SourceConfig, all["2"].Source)
	assert.Equal(t, models.Stop(), all["4"].Action)

	assert.Len(t, s.Fallback(), 2)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	s, err := mappings.Open(mappings.Options{DSN: path})
	require.NoError(t, err)
	require.NoError(t, s.Set("42", models.PlayURI("local:track:a.mp3"), "a"))
	require.NoError(t, s.Close())

	s2, err := mappings.Open(mappings.Options{DSN: path})
	require.NoError(t, err)
	defer s2.Close()
	got, ok := s2.Get("42")
	require.True(t, ok)
	assert.Equal(t, "local:track:a.mp3", got.Action.URI)
}

func TestStore_MigratesLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, legacy.Exec("CREATE TABLE mappings (tag TEXT PRIMARY KEY, uri TEXT NOT NULL)").Error)
	require.NoError(t, legacy.Exec("INSERT INTO mappings (tag, uri) VALUES ('77', 'STOP'), ('78', 'file:///music/a.mp3')").Error)
	sqlDB, err := legacy.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	s, err := mappings.Open(mappings.Options{DSN: path})
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.Get("77")
	require.True(t, ok)
	assert.Equal(t, models.Stop(), got.Action)
	assert.Equal(t, "", got.Description)

	require.NoError(t, s.Set("78", models.PlayURI("file:///music/a.mp3"), "now described"))
	got, ok = s.Get("78")
	require.True(t, ok)
	assert.Equal(t, "now described", got.Description)
}

func TestStore_FailureIsReportedNotPanicked(t *testing.T) {
	s, _ := openStore(t, map[string]string{"1": "STOP"})
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set("2", models.Stop(), ""), models.ErrStore)
	assert.False(t, s.Delete("1"))

	// The config fallback still answers.
	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, models.Stop(), got.Action)
	assert.Len(t, s.ListAll(), 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := mappings.Open(mappings.Options{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}
