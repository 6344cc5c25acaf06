package uploads

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// TilesetManager accepts large ZIP-packaged assets through an async upload
// path: the upload endpoint parks the archive in a temp file, inserts a
// pending record, and hands extraction to the uploads queue.
type TilesetManager struct {
	component.Base
	queue     queue.Queue
	adminRole string
	tempDir   string
}

// NewTilesetManager builds a tileset manager. adminRole names the role
// that bypasses the ownership gate.
func NewTilesetManager(cfg component.Configuration, adminRole string) *TilesetManager {
	return &TilesetManager{Base: component.NewBase(cfg), adminRole: adminRole, tempDir: os.TempDir()}
}

func (m *TilesetManager) Kind() types.ComponentKind { return types.KindAssetsManager }

func (m *TilesetManager) BindUploadQueue(q queue.Queue) { m.queue = q }

func (m *TilesetManager) TableColumns() []types.ColumnSpec { return record.TilesetColumns() }

func (m *TilesetManager) Endpoints() []component.EndpointSpec {
	return []component.EndpointSpec{
		{Method: http.MethodPost, Path: "/upload", Handler: m.upload},
		{Method: http.MethodGet, Path: "/", Handler: m.list},
		{Method: http.MethodGet, Path: "/{id}", Handler: m.get},
		{Method: http.MethodDelete, Path: "/{id}", Handler: m.delete},
	}
}

// upload accepts the raw archive body and enqueues extraction. The response
// is the pending record; its upload status settles asynchronously.
func (m *TilesetManager) upload(r *http.Request) (*component.Response, error) {
	cfg := m.Configuration()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "failed to read upload body", err)
	}
	if len(body) == 0 {
		return nil, errdefs.New(errdefs.KindValidation, "upload body is empty")
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = r.Header.Get("x-filename")
	}

	tmp, err := os.CreateTemp(m.tempDir, "tileset-*.zip")
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindFileOperation, "failed to create temp file", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errdefs.Wrap(errdefs.KindFileOperation, "failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errdefs.Wrap(errdefs.KindFileOperation, "failed to close temp file", err)
	}

	jobID := uuid.NewString()
	rec := &types.TilesetRecord{
		AssetRecord: types.AssetRecord{
			Record: types.Record{
				Name:        cfg.Name,
				ContentType: "application/zip",
				Date:        time.Now().UTC(),
			},
			Filename: filename,
		},
		UploadStatus: types.UploadPending,
		UploadJobID:  jobID,
	}
	if user := auth.UserFrom(r.Context()); user != nil {
		rec.OwnerID = &user.ID
	}
	if err := m.Records.InsertTileset(r.Context(), cfg.Name, rec); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	payload := Payload{
		Table:    cfg.Name,
		RecordID: rec.ID,
		TempPath: tmp.Name(),
		BasePath: path.Join(cfg.Name, jobID),
	}
	err = m.queue.Enqueue(r.Context(), types.QueueUploads, cfg.Name+":upload", payload)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindQueue, "failed to enqueue upload job", err)
	}
	return jsonResponse(http.StatusAccepted, rec)
}

func (m *TilesetManager) list(r *http.Request) (*component.Response, error) {
	cfg := m.Configuration()
	user := auth.UserFrom(r.Context())

	var ownerID *int64
	includePublic := true
	switch {
	case user != nil && m.adminRole != "" && user.HasRole(m.adminRole):
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

func (m *TilesetManager) get(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanRead(auth.UserFrom(r.Context()), rec.OwnerID, rec.IsPublic, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to access this tileset")
	}
	return jsonResponse(http.StatusOK, rec)
}

func (m *TilesetManager) delete(r *http.Request) (*component.Response, error) {
	rec, err := m.lookup(r)
	if err != nil {
		return nil, err
	}
	if !auth.CanMutate(auth.UserFrom(r.Context()), rec.OwnerID, m.adminRole) {
		return nil, errdefs.New(errdefs.KindAuthorization, "not allowed to delete this tileset")
	}
	cfg := m.Configuration()
	if rec.URL != "" {
		if _, err := m.Blobs.DeleteByPrefix(r.Context(), rec.URL); err != nil {
			return nil, err
		}
	}
	if err := m.Records.Delete(r.Context(), cfg.Name, rec.ID); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, map[string]bool{"deleted": true})
}

func (m *TilesetManager) lookup(r *http.Request) (*types.TilesetRecord, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, errdefs.New(errdefs.KindValidation, "invalid tileset id")
	}
	return m.Records.GetTileset(r.Context(), m.Configuration().Name, id)
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
	component.UploadQueueConsumer
	component.TableOwner
} = (*TilesetManager)(nil)
