package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/server"
	"github.com/twinforge/twinforge/pkg/types"
)

func newTablesFixture(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Default()

	store, err := record.Open("sqlite3", filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	m := NewManager(component.Configuration{
		Name:     "sensors",
		Endpoint: "/sensors",
		Columns: []types.ColumnSpec{
			{Name: "label", Type: types.ColumnText, NotNull: true},
			{Name: "reading", Type: types.ColumnReal},
			{Name: "active", Type: types.ColumnBoolean, Default: "TRUE"},
		},
	})
	m.Bind(store, blobs)
	_, err = store.EnsureTable(context.Background(), "sensors", m.TableColumns())
	require.NoError(t, err)

	provider, err := auth.New(cfg)
	require.NoError(t, err)
	srv := server.New(cfg, provider, store)
	require.NoError(t, srv.MountComponent(m.Configuration(), m))
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCustomTableCRUD(t *testing.T) {
	h := newTablesFixture(t)

	rec := doJSON(t, h, http.MethodPost, "/sensors", map[string]interface{}{
		"label": "north-gate", "reading": 21.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "north-gate", row["label"])
	id := int64(row["id"].(float64))

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/sensors/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/sensors/%d", id), map[string]interface{}{
		"reading": 22.75,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.InDelta(t, 22.75, row["reading"], 0.001)
	assert.Equal(t, "north-gate", row["label"])

	rec = doJSON(t, h, http.MethodGet, "/sensors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/sensors/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/sensors/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomTableRejectsUnknownColumn(t *testing.T) {
	h := newTablesFixture(t)

	rec := doJSON(t, h, http.MethodPost, "/sensors", map[string]interface{}{
		"label": "x", "evil": "DROP TABLE sensors",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomTableListPagination(t *testing.T) {
	h := newTablesFixture(t)

	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/sensors", map[string]interface{}{
			"label": fmt.Sprintf("s%d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/sensors?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)
}
