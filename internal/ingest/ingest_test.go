package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
  audit:
    columns:
      - name: action
        type: string
apps:
  app1:
    secret_key: s3cret
    tables: [events]
  app2:
    secret_key: other
    tables: [audit]
`

func newTestIngester(t *testing.T) (*Ingester, *store.Store) {
	t.Helper()

	sch, err := schema.Load([]byte(testSchema))
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Reconcile(context.Background(), sch))
	return New(sch, st, nil), st
}

// decodeEvents parses a JSON array the way the transport does, with
// UseNumber enabled.
func decodeEvents(t *testing.T, doc string) []map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	var events []map[string]any
	require.NoError(t, dec.Decode(&events))
	return events
}

func countRows(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestIngest_InsertsRowWithNullOptional(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "events", "platform": "ios"}]`),
	})
	require.NoError(t, err)

	var platform string
	var score *int64
	require.NoError(t, st.DB().QueryRow(`SELECT "platform", "score" FROM "events"`).Scan(&platform, &score))
	assert.Equal(t, "ios", platform)
	assert.Nil(t, score, "optional column without a value should be NULL")
}

func TestIngest_MissingRequiredFieldFailsBatch(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "events", "score": 5}]`),
	})
	require.True(t, IsBadRequest(err), "got %v", err)

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "platform", ie.Column)
	assert.Equal(t, 0, countRows(t, st, "events"))
}

func TestIngest_BatchIsAtomic(t *testing.T) {
	in, st := newTestIngester(t)

	// Record 2 has a conversion error; records 1 and 3 are fine. The
	// whole batch must roll back.
	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events: decodeEvents(t, `[
			{"_t": "events", "platform": "ios", "score": 1},
			{"_t": "events", "score": 2},
			{"_t": "events", "platform": "android", "score": 3}
		]`),
	})
	require.True(t, IsBadRequest(err))
	assert.Equal(t, 0, countRows(t, st, "events"))
}

func TestIngest_PreservesRecordOrder(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events: decodeEvents(t, `[
			{"_t": "events", "platform": "first"},
			{"_t": "events", "platform": "second"},
			{"_t": "events", "platform": "third"}
		]`),
	})
	require.NoError(t, err)

	rows, err := st.DB().Query(`SELECT "platform" FROM "events" ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var p string
		require.NoError(t, rows.Scan(&p))
		got = append(got, p)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestIngest_UnknownApp(t *testing.T) {
	in, _ := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "nope",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "events", "platform": "ios"}]`),
	})
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestIngest_WrongSecret(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "wrong",
		Events:    decodeEvents(t, `[{"_t": "events", "platform": "ios"}]`),
	})
	assert.True(t, IsForbidden(err), "got %v", err)
	assert.Equal(t, 0, countRows(t, st, "events"))
}

func TestIngest_UnauthorizedTable(t *testing.T) {
	in, st := newTestIngester(t)

	// audit exists in the schema but app1 is not authorized for it.
	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "audit", "action": "login"}]`),
	})
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Equal(t, 0, countRows(t, st, "audit"))
}

func TestIngest_AuthorizationCheckedBeforeAnyWrite(t *testing.T) {
	in, st := newTestIngester(t)

	// The first record is valid, but the second targets an
	// unauthorized table. Nothing may be written.
	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events: decodeEvents(t, `[
			{"_t": "events", "platform": "ios"},
			{"_t": "audit", "action": "login"}
		]`),
	})
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Equal(t, 0, countRows(t, st, "events"))
}

func TestIngest_MissingDiscriminator(t *testing.T) {
	in, _ := newTestIngester(t)

	for _, doc := range []string{
		`[{"platform": "ios"}]`,
		`[{"_t": 5, "platform": "ios"}]`,
	} {
		err := in.Ingest(context.Background(), Request{
			AppID:     "app1",
			SecretKey: "s3cret",
			Events:    decodeEvents(t, doc),
		})
		assert.True(t, IsBadRequest(err), "doc %s: got %v", doc, err)
	}
}

func TestIngest_HeaderSourcedColumn(t *testing.T) {
	in, st := newTestIngester(t)

	header := http.Header{}
	header.Set("Referer", "https://example.com/page")

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "events", "platform": "web"}]`),
		Header:    header,
	})
	require.NoError(t, err)

	var referer string
	require.NoError(t, st.DB().QueryRow(`SELECT "referer" FROM "events"`).Scan(&referer))
	assert.Equal(t, "https://example.com/page", referer)
}

func TestIngest_MissingHeaderIsNull(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    decodeEvents(t, `[{"_t": "events", "platform": "web"}]`),
	})
	require.NoError(t, err)

	var referer *string
	require.NoError(t, st.DB().QueryRow(`SELECT "referer" FROM "events"`).Scan(&referer))
	assert.Nil(t, referer)
}

func TestIngest_EmptyBatchSucceeds(t *testing.T) {
	in, st := newTestIngester(t)

	err := in.Ingest(context.Background(), Request{
		AppID:     "app1",
		SecretKey: "s3cret",
		Events:    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, st, "events"))
}
