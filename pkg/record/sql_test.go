package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_fk=1"
	store, err := Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name  string
		table string
		valid bool
	}{
		{"simple", "weather", true},
		{"underscore", "_private", true},
		{"mixed", "Weather_2024", true},
		{"injection", "users; DROP TABLE x--", false},
		{"leading digit", "2weather", false},
		{"empty", "", false},
		{"space", "my table", false},
		{"too long", "a23456789012345678901234567890123456789012345678901234567890123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.table)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errdefs.IsKind(err, errdefs.KindConfiguration))
			}
		})
	}
}

// TestCreateTableRejectsInjection verifies the gate fires before the store
// is touched.
func TestCreateTableRejectsInjection(t *testing.T) {
	store := newTestStore(t)

	_, err := store.EnsureTable(context.Background(), "users; DROP TABLE x--", BaseColumns())
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindConfiguration))
}

func TestInsertAndReadBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "weather", BaseColumns())
	require.NoError(t, err)

	rec := &types.Record{Name: "weather", ContentType: "application/json", URL: "weather/a.json"}
	require.NoError(t, store.Insert(ctx, "weather", rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.Date.IsZero())

	got, err := store.Get(ctx, "weather", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "weather/a.json", got.URL)
}

func TestLatestFirstEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "weather", BaseColumns())
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "weather")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := store.First(ctx, "weather")
	require.NoError(t, err)
	assert.Nil(t, first)
}

// TestRecordsInRangeOrdering checks [start, end) bounds and descending
// ordering with a stable tie-break on insertion order.
func TestRecordsInRangeOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "weather", BaseColumns())
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &types.Record{
			Name:        "weather",
			ContentType: "application/json",
			URL:         "weather/r.json",
			Date:        base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Insert(ctx, "weather", rec))
	}

	// [base+1s, base+4s) holds records at +1, +2, +3.
	recs, err := store.RecordsInRange(ctx, "weather", base.Add(time.Second), base.Add(4*time.Second), 0, true)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].Date.After(recs[1].Date))
	assert.True(t, recs[1].Date.After(recs[2].Date))

	asc, err := store.RecordsInRange(ctx, "weather", base, base.Add(10*time.Second), 2, false)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.True(t, asc[0].Date.Before(asc[1].Date))
}

func TestRecordsAfterAndLatestBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "weather", BaseColumns())
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Insert(ctx, "weather", &types.Record{
			Name: "weather", ContentType: "application/json", URL: "u",
			Date: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	after, err := store.RecordsAfter(ctx, "weather", base, 10)
	require.NoError(t, err)
	require.Len(t, after, 3, "strictly after excludes the boundary record")

	before, err := store.LatestBefore(ctx, "weather", base.Add(2*time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, base.Add(time.Minute), before[0].Date.UTC())
}

// TestAdditiveMigration mirrors the gltf scenario: a table created without
// is_public gains it at the next startup, and a further startup reports no
// changes.
func TestAdditiveMigration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	partial := BaseColumns()
	partial = append(partial,
		types.ColumnSpec{Name: "description", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "source", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "owner_id", Type: types.ColumnInteger},
		types.ColumnSpec{Name: "filename", Type: types.ColumnText, Default: "''"},
	)
	diff, err := store.EnsureTable(ctx, "gltf", partial)
	require.NoError(t, err)
	assert.True(t, diff.Created)

	diff, err = store.EnsureTable(ctx, "gltf", AssetColumns())
	require.NoError(t, err)
	assert.False(t, diff.Created)
	assert.Equal(t, []string{"is_public"}, diff.AddedColumns)

	diff, err = store.EnsureTable(ctx, "gltf", AssetColumns())
	require.NoError(t, err)
	assert.False(t, diff.Changed())
}

func TestAssetSourceMustBeAbsoluteURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "gltf", AssetColumns())
	require.NoError(t, err)

	rec := &types.AssetRecord{
		Record: types.Record{Name: "gltf", ContentType: "model/gltf-binary", URL: "gltf/a.glb"},
		Source: "not a url",
	}
	err = store.InsertAsset(ctx, "gltf", rec)
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindValidation))

	rec.Source = "https://example.com/models/a.glb"
	assert.NoError(t, store.InsertAsset(ctx, "gltf", rec))
}

// TestUpdateAssetInPlace verifies updates keep the row id stable.
func TestUpdateAssetInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "gltf", AssetColumns())
	require.NoError(t, err)

	owner := int64(7)
	rec := &types.AssetRecord{
		Record:   types.Record{Name: "gltf", ContentType: "model/gltf-binary", URL: "gltf/a.glb"},
		OwnerID:  &owner,
		Filename: "a.glb",
	}
	require.NoError(t, store.InsertAsset(ctx, "gltf", rec))

	pub := true
	desc := "updated"
	require.NoError(t, store.UpdateAsset(ctx, "gltf", rec.ID, AssetUpdate{Description: &desc, IsPublic: &pub}))

	got, err := store.GetAsset(ctx, "gltf", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "updated", got.Description)
	assert.True(t, got.IsPublic)
	assert.Equal(t, "a.glb", got.Filename)
}

func TestUpdateMissingAsset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "gltf", AssetColumns())
	require.NoError(t, err)

	desc := "x"
	err = store.UpdateAsset(ctx, "gltf", 999, AssetUpdate{Description: &desc})
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotFound))
}

func TestTilesetUploadLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "tilesets", TilesetColumns())
	require.NoError(t, err)

	rec := &types.TilesetRecord{
		AssetRecord: types.AssetRecord{
			Record:   types.Record{Name: "tilesets", ContentType: "application/zip", URL: ""},
			Filename: "city.zip",
		},
		UploadJobID: "job-1",
	}
	require.NoError(t, store.InsertTileset(ctx, "tilesets", rec))

	got, err := store.GetTileset(ctx, "tilesets", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadPending, got.UploadStatus)

	status := types.UploadCompleted
	base := "tilesets/abc"
	public := "https://cdn.example.com/tilesets/abc/tileset.json"
	require.NoError(t, store.UpdateTilesetUpload(ctx, "tilesets", rec.ID, TilesetUploadUpdate{
		URL: &base, TilesetURL: &public, UploadStatus: &status,
	}))

	got, err = store.GetTileset(ctx, "tilesets", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadCompleted, got.UploadStatus)
	assert.Equal(t, base, got.URL)
	assert.Equal(t, public, got.TilesetURL)
}

func TestCustomTableCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cols := []types.ColumnSpec{
		{Name: "label", Type: types.ColumnText, NotNull: true},
		{Name: "score", Type: types.ColumnReal},
	}
	_, err := store.EnsureTable(ctx, "annotations", cols)
	require.NoError(t, err)

	id, err := store.CustomInsert(ctx, "annotations", map[string]interface{}{"label": "tower", "score": 0.9})
	require.NoError(t, err)
	assert.NotZero(t, id)

	row, err := store.CustomGet(ctx, "annotations", id)
	require.NoError(t, err)
	assert.Equal(t, "tower", row["label"])

	require.NoError(t, store.CustomUpdate(ctx, "annotations", id, map[string]interface{}{"label": "bridge"}))
	row, err = store.CustomGet(ctx, "annotations", id)
	require.NoError(t, err)
	assert.Equal(t, "bridge", row["label"])

	rows, err := store.CustomList(ctx, "annotations", 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, store.CustomDelete(ctx, "annotations", id))
	_, err = store.CustomGet(ctx, "annotations", id)
	assert.Error(t, err)
}

func TestCustomInsertRejectsBadColumn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTable(ctx, "annotations", []types.ColumnSpec{{Name: "label", Type: types.ColumnText}})
	require.NoError(t, err)

	_, err = store.CustomInsert(ctx, "annotations", map[string]interface{}{"label = 'x'; --": "y"})
	assert.Error(t, err)
}
