package uploads

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/events"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// Payload is the wire payload of an upload job.
type Payload struct {
	Table    string `json:"table"`
	RecordID int64  `json:"recordId"`
	TempPath string `json:"tempPath"`
	BasePath string `json:"basePath"`
}

// Processor extracts uploaded ZIP archives into the blob store and settles
// the pending tileset record. Failed uploads keep their record with the
// failure message for debugging.
type Processor struct {
	records record.Store
	blobs   blob.Store
	broker  *events.Broker
}

// NewProcessor builds the upload worker. broker may be nil.
func NewProcessor(records record.Store, blobs blob.Store, broker *events.Broker) *Processor {
	return &Processor{records: records, blobs: blobs, broker: broker}
}

// Handle processes one upload job from the uploads queue.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errdefs.Wrap(errdefs.KindQueue, "failed to decode upload payload", err)
	}
	logger := log.WithJobID(job.ID)

	if err := p.process(ctx, &payload, logger); err != nil {
		p.fail(ctx, &payload, err, logger)
		return err
	}
	p.publish(events.EventUploadCompleted, &payload)
	return nil
}

func (p *Processor) process(ctx context.Context, payload *Payload, logger zerolog.Logger) error {
	processing := types.UploadProcessing
	err := p.records.UpdateTilesetUpload(ctx, payload.Table, payload.RecordID, record.TilesetUploadUpdate{
		UploadStatus: &processing,
	})
	if err != nil {
		return err
	}

	zr, err := zip.OpenReader(payload.TempPath)
	if err != nil {
		return errdefs.Wrap(errdefs.KindFileOperation, "failed to open uploaded archive", err)
	}
	defer zr.Close()

	var manifest string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := sanitizeEntryName(f.Name)
		if err != nil {
			return err
		}
		data, err := readEntry(f)
		if err != nil {
			return err
		}
		handle, err := p.blobs.SaveAtPath(ctx, data, path.Join(payload.BasePath, name))
		if err != nil {
			return err
		}
		if manifest == "" && isRootManifest(name) {
			manifest = handle
		}
	}
	if manifest == "" {
		return errdefs.New(errdefs.KindUnprocessable, "archive contains no root tileset manifest")
	}

	completed := types.UploadCompleted
	tilesetURL := p.blobs.PublicURL(manifest)
	noError := ""
	err = p.records.UpdateTilesetUpload(ctx, payload.Table, payload.RecordID, record.TilesetUploadUpdate{
		URL:          &payload.BasePath,
		TilesetURL:   &tilesetURL,
		UploadStatus: &completed,
		UploadError:  &noError,
	})
	if err != nil {
		return err
	}

	errdefs.SafeCleanup(logger, "upload temp file", func() error {
		return os.Remove(payload.TempPath)
	})
	logger.Info().Str("table", payload.Table).Int64("record_id", payload.RecordID).Msg("upload complete")
	return nil
}

// fail settles the record as failed and best-effort removes partial state.
// The record itself is preserved.
func (p *Processor) fail(ctx context.Context, payload *Payload, cause error, logger zerolog.Logger) {
	failed := types.UploadFailed
	msg := cause.Error()
	err := p.records.UpdateTilesetUpload(ctx, payload.Table, payload.RecordID, record.TilesetUploadUpdate{
		UploadStatus: &failed,
		UploadError:  &msg,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record upload failure")
	}

	errdefs.SafeCleanup(logger, "partial upload blobs", func() error {
		_, err := p.blobs.DeleteByPrefix(ctx, payload.BasePath)
		return err
	})
	errdefs.SafeCleanup(logger, "upload temp file", func() error {
		return os.Remove(payload.TempPath)
	})
	p.publish(events.EventUploadFailed, payload)
}

func (p *Processor) publish(typ events.EventType, payload *Payload) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(&events.Event{
		Type:          typ,
		ComponentName: payload.Table,
		Metadata:      map[string]string{"basePath": payload.BasePath},
	})
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindFileOperation, "failed to open archive entry", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindFileOperation, "failed to read archive entry", err)
	}
	return data, nil
}

// sanitizeEntryName rejects entries that would escape the base path.
func sanitizeEntryName(name string) (string, error) {
	name = path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "..") {
		return "", errdefs.Newf(errdefs.KindUnprocessable, "unsafe archive entry name: %q", name)
	}
	return name, nil
}

// isRootManifest recognizes the tileset entry point at the archive root.
func isRootManifest(name string) bool {
	return !strings.Contains(name, "/") && strings.HasSuffix(name, ".json")
}
