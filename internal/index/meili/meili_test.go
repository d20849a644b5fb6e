package meili

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// fakeMeili answers the handful of Meilisearch endpoints the client uses.
type fakeMeili struct {
	mu          sync.Mutex
	searchBody  map[string]any
	searchCode  int
	documents   int
	settingsHit int
	indexExists bool
	created     bool
}

func (f *fakeMeili) handler() http.Handler {
	enqueued := `{"taskUid":7,"indexUid":"companies","status":"enqueued","type":"x","enqueuedAt":"2024-01-01T00:00:00Z"}`
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte(`{"status":"available"}`))
		case r.URL.Path == "/indexes/companies/search":
			if f.searchCode != 0 {
				w.WriteHeader(f.searchCode)
				_, _ = w.Write([]byte(`{"message":"boom","code":"internal","type":"internal","link":""}`))
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&f.searchBody)
			_, _ = w.Write([]byte(`{"hits":[
				{"id":"c1","company_name":"ACME CORP","domain":"acme.com","normalized_name":"acme","_rankingScore":0.97},
				{"id":"c5","company_name":"Acme Widgets","domain":"acmewidgets.io","aliases":["Acme W"],"_rankingScore":0.61}
			],"query":"acme","processingTimeMs":1,"limit":20,"offset":0,"estimatedTotalHits":2}`))
		case r.URL.Path == "/indexes/companies/documents":
			var docs []map[string]any
			_ = json.NewDecoder(r.Body).Decode(&docs)
			f.documents += len(docs)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(enqueued))
		case r.URL.Path == "/indexes/companies/settings":
			f.settingsHit++
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(enqueued))
		case r.URL.Path == "/indexes/companies" && r.Method == http.MethodGet:
			if !f.indexExists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Index companies not found.","code":"index_not_found","type":"invalid_request","link":""}`))
				return
			}
			_, _ = w.Write([]byte(`{"uid":"companies","primaryKey":"id","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}`))
		case r.URL.Path == "/indexes" && r.Method == http.MethodPost:
			f.created = true
			f.indexExists = true
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(enqueued))
		case strings.HasPrefix(r.URL.Path, "/tasks/"):
			_, _ = w.Write([]byte(`{"uid":7,"indexUid":"companies","status":"succeeded","type":"x","enqueuedAt":"2024-01-01T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found","code":"not_found","type":"invalid_request","link":""}`))
		}
	})
}

func newClient(t *testing.T, f *fakeMeili) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	cfg := config.Default().Index
	cfg.Endpoint = srv.URL
	cfg.TaskPollInterval = 5 * time.Millisecond
	return New(cfg, nil)
}

func TestSearchDecodesHits(t *testing.T) {
	f := &fakeMeili{}
	c := newClient(t, f)

	hits, err := c.Search(context.Background(), index.Query{Text: "acme", Phonetic: []string{"A25"}, Limit: 20})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].Record.ID)
	assert.Equal(t, "ACME CORP", hits[0].Record.CanonicalName)
	assert.Equal(t, "acme.com", hits[0].Record.Domain)
	assert.InDelta(t, 0.97, hits[0].Score, 1e-9)
	assert.Equal(t, []string{"Acme W"}, hits[1].Record.Aliases)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "acme A25", f.searchBody["q"])
	assert.EqualValues(t, 20, f.searchBody["limit"])
}

func TestSearchServerErrorIsUnavailable(t *testing.T) {
	f := &fakeMeili{searchCode: http.StatusInternalServerError}
	c := newClient(t, f)
	_, err := c.Search(context.Background(), index.Query{Text: "acme", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
}

func TestSearchUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := config.Default().Index
	cfg.Endpoint = url
	c := New(cfg, nil)
	_, err := c.Search(context.Background(), index.Query{Text: "acme", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
}

func TestSearchDeadlineIsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})
	cfg := config.Default().Index
	cfg.Endpoint = srv.URL
	c := New(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, index.Query{Text: "acme", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrRetrievalTimeout)
}

func TestSearchCancelledIsNotTimeout(t *testing.T) {
	c := newClient(t, &fakeMeili{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, index.Query{Text: "acme", Limit: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrRetrievalTimeout)
	assert.NotErrorIs(t, err, apperrors.ErrRetrievalUnavailable)
}

func TestApplySettingsCreatesMissingIndex(t *testing.T) {
	f := &fakeMeili{}
	c := newClient(t, f)
	require.NoError(t, c.ApplySettings(context.Background(), index.DefaultSettings(1)))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.created)
	assert.Equal(t, 1, f.settingsHit)
}

func TestAddDocumentsWaitsForTask(t *testing.T) {
	f := &fakeMeili{indexExists: true}
	c := newClient(t, f)
	docs := []index.Document{{ID: "c1", CompanyName: "ACME CORP"}, {ID: "c2", CompanyName: "Globex"}}
	require.NoError(t, c.AddDocuments(context.Background(), docs))
	require.NoError(t, c.AddDocuments(context.Background(), nil))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 2, f.documents)
}

func TestHealth(t *testing.T) {
	c := newClient(t, &fakeMeili{})
	assert.NoError(t, c.Health(context.Background()))
}
