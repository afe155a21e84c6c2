package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evsink/internal/ingest"
	"evsink/internal/schema"
	"evsink/internal/store"
)

const testSchema = `
tables:
  events:
    columns:
      - name: platform
        type: string
        required: true
      - name: score
        type: i32
      - name: referer
        type: string
        header: Referer
apps:
  app1:
    secret_key: s3cret
    access_control_allow_origin: http://example.com
    tables: [events]
`

func newTestServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()

	sch, err := schema.Load([]byte(testSchema))
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Reconcile(context.Background(), sch))

	return New(sch, ingest.New(sch, st, nil), nil), st
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_PostEvents(t *testing.T) {
	h, st := newTestServer(t)

	rec := post(t, h, "/apps/app1/events",
		`{"secret_key": "s3cret", "events": [{"_t": "events", "platform": "ios"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM "events"`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestServer_HeaderSourcedColumn(t *testing.T) {
	h, st := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/apps/app1/events",
		strings.NewReader(`{"secret_key": "s3cret", "events": [{"_t": "events", "platform": "web"}]}`))
	req.Header.Set("Referer", "https://example.com/page")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var referer string
	require.NoError(t, st.DB().QueryRow(`SELECT "referer" FROM "events"`).Scan(&referer))
	assert.Equal(t, "https://example.com/page", referer)
}

func TestServer_StatusMapping(t *testing.T) {
	h, st := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{
			"unknown app",
			"/apps/ghost/events",
			`{"secret_key": "s3cret", "events": []}`,
			http.StatusNotFound,
		},
		{
			"wrong secret",
			"/apps/app1/events",
			`{"secret_key": "wrong", "events": []}`,
			http.StatusForbidden,
		},
		{
			"missing required field",
			"/apps/app1/events",
			`{"secret_key": "s3cret", "events": [{"_t": "events", "score": 5}]}`,
			http.StatusBadRequest,
		},
		{
			"unauthorized table",
			"/apps/app1/events",
			`{"secret_key": "s3cret", "events": [{"_t": "other", "platform": "ios"}]}`,
			http.StatusNotFound,
		},
		{
			"malformed body",
			"/apps/app1/events",
			`{"secret_key": `,
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM "events"`).Scan(&n))
	assert.Equal(t, 0, n, "no failed request may leave rows behind")
}

func TestServer_BadRequestNamesColumn(t *testing.T) {
	h, _ := newTestServer(t)

	rec := post(t, h, "/apps/app1/events",
		`{"secret_key": "s3cret", "events": [{"_t": "events", "score": 5}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "platform")
}

func TestServer_InternalDetailHidden(t *testing.T) {
	sch, err := schema.Load([]byte(testSchema))
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Reconcile(context.Background(), sch))
	// Closing the store makes every transaction fail, forcing the
	// internal error path.
	require.NoError(t, st.Close())

	h := New(sch, ingest.New(sch, st, nil), nil)
	rec := post(t, h, "/apps/app1/events",
		`{"secret_key": "s3cret", "events": [{"_t": "events", "platform": "ios"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
	assert.NotContains(t, rec.Body.String(), "sql")
}

func TestServer_OversizedBody(t *testing.T) {
	h, _ := newTestServer(t)

	big := `{"secret_key": "s3cret", "events": [{"_t": "events", "platform": "` +
		strings.Repeat("x", maxBodyBytes) + `"}]}`
	rec := post(t, h, "/apps/app1/events", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_Preflight(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/apps/app1/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodOptions, "/apps/ghost/events", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
