package component

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// defaultListLimit caps unbounded record listings.
const defaultListLimit = 100

// recordEndpoints is the built-in read surface shared by collectors and
// harvesters: record listings over the component's table plus payload
// fetch from the blob store.
func recordEndpoints(b *Base) []EndpointSpec {
	return []EndpointSpec{
		{Method: http.MethodGet, Path: "/", Handler: b.listRecords},
		{Method: http.MethodGet, Path: "/latest", Handler: b.latestRecord},
		{Method: http.MethodGet, Path: "/latest/data", Handler: b.latestData},
		{Method: http.MethodGet, Path: "/{id}", Handler: b.getRecord},
		{Method: http.MethodGet, Path: "/{id}/data", Handler: b.recordData},
	}
}

// listRecords serves the component's records newest first. Optional query
// parameters: from and to (RFC 3339, half-open range) and limit.
func (b *Base) listRecords(r *http.Request) (*Response, error) {
	from := time.Time{}
	to := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "invalid from date", err)
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "invalid to date", err)
		}
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			return nil, errdefs.New(errdefs.KindValidation, "limit must be a positive integer")
		}
	}

	recs, err := b.Records.RecordsInRange(r.Context(), b.cfg.Name, from, to, limit, true)
	if err != nil {
		return nil, err
	}
	return recordJSON(http.StatusOK, recs)
}

func (b *Base) latestRecord(r *http.Request) (*Response, error) {
	rec, err := b.latest(r)
	if err != nil {
		return nil, err
	}
	return recordJSON(http.StatusOK, rec)
}

func (b *Base) latestData(r *http.Request) (*Response, error) {
	rec, err := b.latest(r)
	if err != nil {
		return nil, err
	}
	return b.payloadResponse(r, rec)
}

func (b *Base) getRecord(r *http.Request) (*Response, error) {
	rec, err := b.recordByID(r)
	if err != nil {
		return nil, err
	}
	return recordJSON(http.StatusOK, rec)
}

func (b *Base) recordData(r *http.Request) (*Response, error) {
	rec, err := b.recordByID(r)
	if err != nil {
		return nil, err
	}
	return b.payloadResponse(r, rec)
}

func (b *Base) latest(r *http.Request) (*types.Record, error) {
	rec, err := b.Records.Latest(r.Context(), b.cfg.Name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errdefs.Newf(errdefs.KindNotFound, "%s has no records yet", b.cfg.Name)
	}
	return rec, nil
}

func (b *Base) recordByID(r *http.Request) (*types.Record, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, errdefs.New(errdefs.KindValidation, "invalid record id")
	}
	return b.Records.Get(r.Context(), b.cfg.Name, id)
}

// payloadResponse serves the record's blob under its stored content type.
func (b *Base) payloadResponse(r *http.Request, rec *types.Record) (*Response, error) {
	payload, err := b.Blobs.Retrieve(r.Context(), rec.URL)
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, Content: payload, ContentType: rec.ContentType}, nil
}

func recordJSON(status int, v interface{}) (*Response, error) {
	content, err := json.Marshal(v)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindUnprocessable, "failed to encode response", err)
	}
	return &Response{Status: status, Content: content, ContentType: "application/json"}, nil
}
