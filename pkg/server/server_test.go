package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	provider, err := auth.New(cfg)
	require.NoError(t, err)

	store, err := record.Open("sqlite3", filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(cfg, provider, store)
}

func decodeEnvelope(t *testing.T, body io.Reader) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.Stop(context.Background()))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzRunsChecks(t *testing.T) {
	s := newTestServer(t, nil)
	s.AddHealthCheck("db", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s.AddHealthCheck("redis", func(ctx context.Context) error {
		return errdefs.New(errdefs.KindExternalService, "connection refused")
	})

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestNotFoundEnvelope(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("x-request-id", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "not_found", env.Error.Code)
	assert.Equal(t, "req-42", env.Error.RequestID)
	assert.Equal(t, "req-42", rec.Header().Get("x-request-id"))
}

func TestRequestIDGenerated(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))
}

func TestMountComponentServesResponse(t *testing.T) {
	s := newTestServer(t, nil)

	comp := component.NewHandler(component.Configuration{Name: "ping", Endpoint: "/ping"},
		component.EndpointSpec{
			Method: http.MethodGet,
			Path:   "/",
			Handler: func(r *http.Request) (*component.Response, error) {
				return &component.Response{
					Status:      http.StatusOK,
					Headers:     map[string]string{"x-pong": "1"},
					Content:     []byte(`{"pong":true}`),
					ContentType: "application/json",
				}, nil
			},
		},
		component.EndpointSpec{
			Method: http.MethodGet,
			Path:   "/fail",
			Handler: func(r *http.Request) (*component.Response, error) {
				return nil, errdefs.New(errdefs.KindValidation, "bad input")
			},
		},
	)
	require.NoError(t, s.MountComponent(comp.Configuration(), comp))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("x-pong"))
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping/fail", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "validation", env.Error.Code)
}

func TestMountComponentRejectsUnsupportedMethod(t *testing.T) {
	s := newTestServer(t, nil)

	comp := component.NewHandler(component.Configuration{Name: "bad"},
		component.EndpointSpec{
			Method:  "TRACE",
			Path:    "/x",
			Handler: func(r *http.Request) (*component.Response, error) { return nil, nil },
		},
	)
	err := s.MountComponent(comp.Configuration(), comp)
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindConfiguration))
}

func TestAuthMiddlewareReconcilesUser(t *testing.T) {
	s := newTestServer(t, nil)

	comp := component.NewHandler(component.Configuration{Name: "whoami", Endpoint: "/whoami"},
		component.EndpointSpec{
			Method: http.MethodGet,
			Path:   "/",
			Handler: func(r *http.Request) (*component.Response, error) {
				user := auth.UserFrom(r.Context())
				require.NotNil(t, user)
				content, _ := json.Marshal(user)
				return &component.Response{Content: content, ContentType: "application/json"}, nil
			},
		},
	)
	require.NoError(t, s.MountComponent(comp.Configuration(), comp))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("x-user-id", "alice")
	req.Header.Set("x-user-roles", "editor,admin")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"externalId":"alice"`)
	assert.Contains(t, rec.Body.String(), "editor")

	// Without credentials the request proceeds anonymously.
	anon := component.NewHandler(component.Configuration{Name: "anon", Endpoint: "/anon"},
		component.EndpointSpec{
			Method: http.MethodGet,
			Path:   "/",
			Handler: func(r *http.Request) (*component.Response, error) {
				assert.Nil(t, auth.UserFrom(r.Context()))
				return &component.Response{Content: []byte("ok")}, nil
			},
		},
	)
	require.NoError(t, s.MountComponent(anon.Configuration(), anon))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledAuthYieldsAnonymousUser(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Disabled = true
	})

	comp := component.NewHandler(component.Configuration{Name: "whoami", Endpoint: "/whoami"},
		component.EndpointSpec{
			Method: http.MethodGet,
			Path:   "/",
			Handler: func(r *http.Request) (*component.Response, error) {
				user := auth.UserFrom(r.Context())
				require.NotNil(t, user)
				assert.Equal(t, "anonymous", user.ExternalID)
				assert.True(t, user.HasRole(auth.AnonymousRole))
				return &component.Response{Content: []byte("ok")}, nil
			},
		},
	)
	require.NoError(t, s.MountComponent(comp.Configuration(), comp))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductionSuppressesStack(t *testing.T) {
	for _, production := range []bool{false, true} {
		s := newTestServer(t, func(cfg *config.Config) { cfg.Production = production })

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		env := decodeEnvelope(t, rec.Body)
		if production {
			assert.Empty(t, env.Error.Stack)
		} else {
			assert.NotEmpty(t, env.Error.Stack)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.BodyLimitBytes = 8 })

	comp := component.NewHandler(component.Configuration{Name: "sink", Endpoint: "/sink"},
		component.EndpointSpec{
			Method: http.MethodPost,
			Path:   "/",
			Handler: func(r *http.Request) (*component.Response, error) {
				if _, err := io.ReadAll(r.Body); err != nil {
					return nil, errdefs.Wrap(errdefs.KindValidation, "body too large", err)
				}
				return &component.Response{Content: []byte("ok")}, nil
			},
		},
	)
	require.NoError(t, s.MountComponent(comp.Configuration(), comp))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sink", strings.NewReader("well beyond the limit")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.Start())

	port := s.ActualPort()
	assert.NotZero(t, port)

	require.NoError(t, s.Stop(context.Background()))

	start := time.Now()
	require.NoError(t, s.Stop(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBasePathPrefixesRoutes(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.BasePath = "/api" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectorRecordsServedOverHTTP(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	store, err := record.Open("sqlite3", filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blob.NewLocalStore(t.TempDir(), "/blobs")
	require.NoError(t, err)

	weather := component.NewCollector(component.Configuration{
		Name: "weather", ContentType: "application/json", Endpoint: "/weather",
	}, nil)
	weather.Bind(store, blobs)
	_, err = store.EnsureTable(ctx, "weather", record.BaseColumns())
	require.NoError(t, err)

	provider, err := auth.New(cfg)
	require.NoError(t, err)
	s := New(cfg, provider, store)
	require.NoError(t, s.MountComponent(weather.Configuration(), weather))

	// Empty table: latest is a 404 envelope.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	handle, err := blobs.Save(ctx, []byte(`{"t":22}`), "weather", "json")
	require.NoError(t, err)
	stored := &types.Record{
		Name:        "weather",
		ContentType: "application/json",
		URL:         handle,
		Date:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Insert(ctx, "weather", stored))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed []types.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, stored.ID, listed[0].ID)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather/latest/data", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"t":22}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/weather/%d/data", stored.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"t":22}`, rec.Body.String())

	// Out-of-window range queries come back empty.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/weather?from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	listed = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)
}
