package tables

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// defaultPageSize caps list responses when the caller sets no limit.
const defaultPageSize = 100

// Manager owns a record-store table with a caller-declared column schema
// and exposes CRUD endpoints over it. Custom tables carry no blob.
type Manager struct {
	component.Base
}

// NewManager builds a custom table manager from a configuration declaring
// the table's columns.
func NewManager(cfg component.Configuration) *Manager {
	return &Manager{Base: component.NewBase(cfg)}
}

func (m *Manager) Kind() types.ComponentKind { return types.KindCustomTableManager }

func (m *Manager) TableColumns() []types.ColumnSpec { return m.Configuration().Columns }

func (m *Manager) Endpoints() []component.EndpointSpec {
	return []component.EndpointSpec{
		{Method: http.MethodPost, Path: "/", Handler: m.create},
		{Method: http.MethodGet, Path: "/", Handler: m.list},
		{Method: http.MethodGet, Path: "/{id}", Handler: m.get},
		{Method: http.MethodPut, Path: "/{id}", Handler: m.update},
		{Method: http.MethodDelete, Path: "/{id}", Handler: m.delete},
	}
}

func (m *Manager) create(r *http.Request) (*component.Response, error) {
	values, err := m.decodeRow(r)
	if err != nil {
		return nil, err
	}
	id, err := m.Records.CustomInsert(r.Context(), m.Configuration().Name, values)
	if err != nil {
		return nil, err
	}
	row, err := m.Records.CustomGet(r.Context(), m.Configuration().Name, id)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, row)
}

func (m *Manager) list(r *http.Request) (*component.Response, error) {
	limit := queryInt(r, "limit", defaultPageSize)
	offset := queryInt(r, "offset", 0)
	rows, err := m.Records.CustomList(r.Context(), m.Configuration().Name, limit, offset)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, rows)
}

func (m *Manager) get(r *http.Request) (*component.Response, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	row, err := m.Records.CustomGet(r.Context(), m.Configuration().Name, id)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, row)
}

func (m *Manager) update(r *http.Request) (*component.Response, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	values, err := m.decodeRow(r)
	if err != nil {
		return nil, err
	}
	if err := m.Records.CustomUpdate(r.Context(), m.Configuration().Name, id, values); err != nil {
		return nil, err
	}
	row, err := m.Records.CustomGet(r.Context(), m.Configuration().Name, id)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, row)
}

func (m *Manager) delete(r *http.Request) (*component.Response, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	if err := m.Records.CustomDelete(r.Context(), m.Configuration().Name, id); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, map[string]bool{"deleted": true})
}

// decodeRow reads the JSON body and restricts it to declared columns.
func (m *Manager) decodeRow(r *http.Request) (map[string]interface{}, error) {
	var values map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "invalid row body", err)
	}
	if len(values) == 0 {
		return nil, errdefs.New(errdefs.KindValidation, "row body is empty")
	}
	declared := make(map[string]bool, len(m.Configuration().Columns))
	for _, col := range m.Configuration().Columns {
		declared[col.Name] = true
	}
	for name := range values {
		if name == "id" {
			delete(values, name)
			continue
		}
		if !declared[name] {
			return nil, errdefs.Newf(errdefs.KindValidation, "unknown column %q", name)
		}
	}
	return values, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errdefs.New(errdefs.KindValidation, "invalid row id")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func jsonResponse(status int, v interface{}) (*component.Response, error) {
	content, err := json.Marshal(v)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindUnprocessable, "failed to encode response", err)
	}
	return &component.Response{Status: status, Content: content, ContentType: "application/json"}, nil
}

var _ interface {
	component.Servable
	component.DependencyConsumer
	component.TableOwner
} = (*Manager)(nil)
