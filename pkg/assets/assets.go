package assets

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// Manager serves user-owned binary assets: upload, list, fetch, download,
// update, delete. Every mutation passes the ownership gate; public assets
// are readable by anyone but writable only by their owner or an admin.
type Manager struct {
	component.Base
	adminRole string
}

// NewManager builds an assets manager. adminRole names the role that
// bypasses the ownership gate.
func NewManager(cfg component.Configuration, adminRole string) *Manager {
	return &Manager{Base: component.NewBase(cfg), adminRole: adminRole}
}

func (m *Manager) Kind() types.ComponentKind { return types.KindAssetsManager }

func (m *Manager) TableColumns() []types.ColumnSpec { return record.AssetColumns() }

func (m *Manager) Endpoints() []component.EndpointSpec {
	return []component.EndpointSpec{
		{Method: http.MethodPost, Path: "/upload", Handler: m.upload},
		{Method: http.MethodGet, Path: "/", Handler: m.list},
		{Method: http.MethodGet, Path: "/{id}", Handler: m.get},
		{Method: http.MethodGet, Path: "/{id}/download", Handler: m.download},
		{Method: http.MethodPatch, Path: "/{id}", Handler: m.update},
		{Method: http.MethodDelete, Path: "/{id}", Handler: m.delete},
	}
}

// uploadRequest carries the asset metadata accepted alongside the body.
type uploadRequest struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
	Source      string `json:"source"`
	IsPublic    bool   `json:"isPublic"`
	ContentType string `json:"contentType"`
}

func (m *Manager) upload(r *http.Request) (*component.Response, error) {
	cfg := m.Configuration()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "failed to read upload body", err)
	}
	if len(body) == 0 {
		return nil, errdefs.New(errdefs.KindValidation, "upload body is empty")
	}

	meta := uploadRequest{
		Filename:    r.URL.Query().Get("filename"),
		Description: r.URL.Query().Get("description"),
		Source:      r.URL.Query().Get("source"),
		IsPublic:    r.URL.Query().Get("isPublic") == "true",
		ContentType: r.Header.Get("Content-Type"),
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	handle, err := m.Blobs.Save(r.Context(), body, cfg.Name, extensionOf(meta.Filename))
	if err != nil {
		return nil, err
	}

	rec := &types.AssetRecord{
		Record: types.Record{
			Name:        cfg.Name,
			ContentType: meta.ContentType,
			URL:         handle,
			Date:        time.Now().UTC(),
		},
		Description: meta.Description,
		Source:      meta.Source,
		Filename:    meta.Filename,
		IsPublic:    meta.IsPublic,
	}
	if user := auth.UserFrom(r.Context()); user != nil {
		rec.OwnerID = &user.ID
	}
	if err := m.Records.InsertAsset(r.Context(), cfg.Name, rec); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, rec)
}

func (m *Manager) list(r *http.Request) (*component.Response, error) {
	cfg := m.Configuration()
	user := auth.UserFrom(r.Context())

	var ownerID *int64
	includePublic := true
	switch {
	case user != nil && m.adminRole != "" && user.HasRole(m.adminRole):
		// Admins see everything.
		includePublic = false
	case user != nil:
		ownerID = &user.ID
	}
	recs, err := m.Records.ListAssets(r.Context(), cfg.Name, ownerID, includePublic)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, recs)
}

func (m *Manager) get(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanRead(auth.UserFrom(r.Context()), rec.OwnerID, rec.IsPublic, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to access this asset")
	}
	return jsonResponse(http.StatusOK, rec)
}

func (m *Manager) download(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanRead(auth.UserFrom(r.Context()), rec.OwnerID, rec.IsPublic, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to access this asset")
	}
	payload, err := m.Blobs.Retrieve(r.Context(), rec.URL)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if rec.Filename != "" {
		headers["Content-Disposition"] = `attachment; filename="` + rec.Filename + `"`
	}
	return &component.Response{
		Status:      http.StatusOK,
		Headers:     headers,
		Content:     payload,
		ContentType: rec.ContentType,
	}, nil
}

// updateRequest mirrors the mutable asset fields. Absent fields are left
// untouched.
type updateRequest struct {
	Description *string `json:"description"`
	Source      *string `json:"source"`
	Filename    *string `json:"filename"`
	IsPublic    *bool   `json:"isPublic"`
}

func (m *Manager) update(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanMutate(auth.UserFrom(r.Context()), rec.OwnerID, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to modify this asset")
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "invalid update body", err)
	}
	cfg := m.Configuration()
	err = m.Records.UpdateAsset(r.Context(), cfg.Name, rec.ID, record.AssetUpdate{
		Description: req.Description,
		Source:      req.Source,
		Filename:    req.Filename,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		return nil, err
	}
	updated, err := m.Records.GetAsset(r.Context(), cfg.Name, rec.ID)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, updated)
}

func (m *Manager) delete(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanMutate(auth.UserFrom(r.Context()), rec.OwnerID, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to delete this asset")
	}
	cfg := m.Configuration()
	if err := m.Blobs.Delete(r.Context(), rec.URL); err != nil {
		return nil, err
	}
	if err := m.Records.Delete(r.Context(), cfg.Name, rec.ID); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, map[string]bool{"deleted": true})
}

func (m *Manager) lookup(r *http.Request) (*types.AssetRecord, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, errdefs.New(errdefs.KindValidation, "invalid asset id")
	}
	return m.Records.GetAsset(r.Context(), m.Configuration().Name, id)
}

func extensionOf(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		return ""
	}
	return ext[1:]
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
