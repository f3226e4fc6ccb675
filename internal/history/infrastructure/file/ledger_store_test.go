package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	history "plantwatch/internal/history/domain"
	plant "plantwatch/internal/plant/domain"
)

func TestLedgerStoreCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.json")
	store, err := NewLedgerStore(path)
	require.NoError(t, err)

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestLedgerStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := NewLedgerStore(path)
	require.NoError(t, err)

	entries := []history.Entry{{
		ID:          "e-1",
		Date:        "15/10/26",
		Time:        "08:00 AM",
		Snapshot:    plant.Snapshot{plant.KeyTemperature: plant.Present(22.5), plant.KeyHumidity: plant.Absent},
		Origin:      history.OriginAutomatic,
		SourceLabel: "Alarm 08:00 AM - Row 2",
	}}
	require.NoError(t, store.Save(context.Background(), entries))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, entries[0].SourceLabel, loaded[0].SourceLabel)
	assert.Equal(t, history.OriginAutomatic, loaded[0].Origin)
	assert.True(t, loaded[0].Snapshot.Has(plant.KeyHumidity))
	assert.False(t, loaded[0].Snapshot.Get(plant.KeyHumidity).IsPresent())
}

func TestLedgerStoreReadsLegacyOrigin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	legacy := `[{"date":"01/01/26","time":"07:00 AM","snapshot":{"presion-24":-20},"origin":"Automatico","source_label":"x"}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))
	store, err := NewLedgerStore(path)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, history.OriginAutomatic, loaded[0].Origin)
}

func TestLedgerStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	store, err := NewLedgerStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}
