package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-flyover/internal/geo"
	"recon-flyover/internal/mission"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	require.NoError(t, err, "failed to create test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func newMission(id, poi string, created time.Time) *mission.Result {
	r := mission.NewResult(id, poi, "Achill Island")
	r.CreatedAt = created
	r.Coordinate = geo.Coordinate{Latitude: 53.9889, Longitude: -10.0661}
	return r
}

func TestSQLiteDB_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newMission("m1", "The Valley House", time.Now().UTC())
	r.MarkCompleted(nil, "out/drone_simulation.html")
	r.Frames = []mission.FrameSummary{{Index: "1", Bearing: "0", ImagePath: "frame_1_satellite_enhanced_hud.jpg"}}
	require.NoError(t, db.Save(ctx, r))

	got, err := db.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, mission.StatusSuccess, got.Status)
	assert.Equal(t, "The Valley House", got.POI)
	assert.Equal(t, r.Coordinate, got.Coordinate)
	assert.Equal(t, r.Frames, got.Frames)
	assert.Equal(t, "out/drone_simulation.html", got.ViewerPath)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLiteDB_SaveUpdatesExisting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newMission("m1", "Keem Bay", time.Now().UTC())
	require.NoError(t, db.Save(ctx, r))

	r.MarkFailed(errors.New("flyover sequence is empty"))
	require.NoError(t, db.Save(ctx, r))

	got, err := db.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, mission.StatusFailed, got.Status)
	assert.Equal(t, "flyover sequence is empty", got.Error)

	all, err := db.ListMissions(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteDB_GetMissing(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMissionNotFound)
}

func TestSQLiteDB_ListMissions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, poi := range []string{"Keem Bay", "The Valley House", "Keem Bay"} {
		r := newMission(string(rune('a'+i)), poi, base.Add(time.Duration(i)*time.Minute))
		if i == 1 {
			r.MarkFailed(errors.New("boom"))
		}
		require.NoError(t, db.Save(ctx, r))
	}

	all, err := db.ListMissions(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	failed := mission.StatusFailed
	results, err := db.ListMissions(ctx, Filter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	results, err = db.ListMissions(ctx, Filter{POI: "keem bay"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = db.ListMissions(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestSQLiteDB_ListEmpty(t *testing.T) {
	db := setupTestDB(t)

	results, err := db.ListMissions(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
