package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

func newEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Redis.Addr = mr.Addr()
	cfg.DB.DSN = filepath.Join(t.TempDir(), "engine.db")
	cfg.Blob.BasePath = t.TempDir()
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestEngineCollectsOnSchedule(t *testing.T) {
	cfg := newEngineConfig(t)
	e := New(cfg)

	weather := component.NewCollector(component.Configuration{
		Name: "weather", ContentType: "application/json", Schedule: "*/1 * * * * *",
	}, func(ctx context.Context) ([]byte, error) { return []byte(`{"t":22}`), nil })
	require.NoError(t, e.Register(weather))

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	assert.NotZero(t, e.ActualPort())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", e.ActualPort()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The collector's store is bound at start; the repeating job fires
	// within its one-second cron period.
	waitFor(t, 5*time.Second, func() bool {
		rec, err := weather.Records.Latest(ctx, "weather")
		return err == nil && rec != nil
	})

	rec, err := weather.Records.Latest(ctx, "weather")
	require.NoError(t, err)
	payload, err := weather.Blobs.Retrieve(ctx, rec.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":22}`, string(payload))

	// The collector's built-in read surface serves the same artifact.
	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/weather/latest/data", e.ActualPort()))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"t":22}`, string(body))
}

func TestCollectorCompletionTriggersHarvester(t *testing.T) {
	cfg := newEngineConfig(t)
	e := New(cfg)

	coll := component.NewCollector(component.Configuration{
		Name: "coll", ContentType: "application/json", Schedule: "*/1 * * * * *",
	}, func(ctx context.Context) ([]byte, error) { return []byte(`{"v":1}`), nil })
	require.NoError(t, e.Register(coll))

	der := component.NewHarvester(component.Configuration{
		Name: "der", ContentType: "application/json", Source: "coll",
		TriggerMode: types.TriggerOnSource, DebounceMs: 100,
	}, func(ctx context.Context, input *component.HarvestInput) (*component.HarvestResult, error) {
		return &component.HarvestResult{Payloads: [][]byte{[]byte(`{"derived":true}`)}}, nil
	})
	require.NoError(t, e.Register(der))

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	waitFor(t, 10*time.Second, func() bool {
		rec, err := der.Records.Latest(ctx, "der")
		return err == nil && rec != nil
	})
}

func TestEngineStopIsIdempotent(t *testing.T) {
	cfg := newEngineConfig(t)
	e := New(cfg)
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Stop(context.Background()))

	start := time.Now()
	require.NoError(t, e.Stop(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestEngineRejectsDuplicateNames(t *testing.T) {
	e := New(newEngineConfig(t))

	require.NoError(t, e.Register(component.NewHandler(component.Configuration{Name: "dup"})))
	err := e.Register(component.NewHandler(component.Configuration{Name: "dup"}))
	assert.Error(t, err)
}

func TestEngineValidateReportsComponentProblems(t *testing.T) {
	e := New(newEngineConfig(t))

	bad := component.NewHarvester(component.Configuration{
		Name: "bad", Source: "src", SourceRange: "10w",
	}, nil)
	// Registration already rejects the invalid range.
	require.Error(t, e.Register(bad))

	report := e.Validate()
	assert.True(t, report.OK())
}

func TestAdditiveTableMigrationAcrossRestarts(t *testing.T) {
	cfg := newEngineConfig(t)
	ctx := context.Background()

	// Seed a gltf table that predates the is_public column.
	legacy := record.AssetColumns()
	var partial []types.ColumnSpec
	for _, col := range legacy {
		if col.Name != "is_public" {
			partial = append(partial, col)
		}
	}
	store, err := record.Open("sqlite3", cfg.DB.DSN)
	require.NoError(t, err)
	_, err = store.EnsureTable(ctx, "gltf", partial)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	newGltfEngine := func() *Engine {
		e := New(cfg)
		m := &tableOwnerComponent{Base: component.NewBase(component.Configuration{Name: "gltf"})}
		require.NoError(t, e.Register(m))
		return e
	}

	e := newGltfEngine()
	require.NoError(t, e.Start(ctx))
	var gltfDiff *record.MigrationDiff
	for _, d := range e.MigrationDiffs() {
		if d.Table == "gltf" {
			gltfDiff = d
		}
	}
	require.NotNil(t, gltfDiff)
	assert.False(t, gltfDiff.Created)
	assert.Contains(t, gltfDiff.AddedColumns, "is_public")
	require.NoError(t, e.Stop(ctx))

	// A second startup reports no changes for gltf.
	cfg.Redis.Addr = miniredis.RunT(t).Addr()
	e = newGltfEngine()
	require.NoError(t, e.Start(ctx))
	for _, d := range e.MigrationDiffs() {
		if d.Table == "gltf" {
			assert.False(t, d.Changed())
		}
	}
	require.NoError(t, e.Stop(ctx))
}

// tableOwnerComponent is a minimal component owning an asset-shaped table.
type tableOwnerComponent struct {
	component.Base
}

func (c *tableOwnerComponent) Kind() types.ComponentKind { return types.KindAssetsManager }

func (c *tableOwnerComponent) TableColumns() []types.ColumnSpec { return record.AssetColumns() }
