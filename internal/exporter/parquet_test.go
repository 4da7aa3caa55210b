package exporter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetrend/internal/dataprocessing"
	apperrors "aetrend/internal/errors"
)

func TestEventStoreRoundTrip(t *testing.T) {
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	age := 45.0
	events := []dataprocessing.Event{
		{
			EventDate:  &d,
			CaseID:     "100",
			Drug:       "ASPIRIN",
			ReactionPT: "HEADACHE",
			Sex:        "M",
			Age:        &age,
			Country:    "US",
			Serious:    true,
			Quarter:    "2024Q1",
		},
		{
			CaseID:     "101",
			Drug:       dataprocessing.UnknownDrug,
			ReactionPT: "NAUSEA",
			Sex:        "UNK",
			Quarter:    "2024Q1",
		},
	}

	store := NewEventStore(nil)
	path := filepath.Join(t.TempDir(), "events.parquet")
	require.NoError(t, store.WriteEvents(path, events))

	got, err := store.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NotNil(t, got[0].EventDate)
	assert.Equal(t, d, *got[0].EventDate)
	require.NotNil(t, got[0].Age)
	assert.Equal(t, 45.0, *got[0].Age)
	assert.True(t, got[0].Serious)

	assert.Nil(t, got[1].EventDate)
	assert.Nil(t, got[1].Age)
	assert.Equal(t, dataprocessing.UnknownDrug, got[1].Drug)
}

func TestEventWriterCount(t *testing.T) {
	store := NewEventStore(nil)
	path := filepath.Join(t.TempDir(), "events.parquet")

	w, err := store.CreateWriter(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(dataprocessing.Event{
			CaseID: "C", Drug: "D", ReactionPT: "R", Quarter: "2024Q1",
		}))
	}
	assert.Equal(t, 5, w.Count())
	require.NoError(t, w.Close())

	got, err := store.ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestReadEvents_MissingFile(t *testing.T) {
	_, err := NewEventStore(nil).ReadEvents(filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}
