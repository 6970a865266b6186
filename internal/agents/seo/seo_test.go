package seo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qhttp "query-orchestrator/internal/common/http"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crawlCSV = "\ufeffAddress,Status Code,Title 1,Meta Description 1,Indexability,Word Count\n" +
	"https://example.com/,200,Home,Welcome to example,Indexable,500\n" +
	"http://example.com/old,301,Old page,,Non-Indexable,0\n" +
	"https://example.com/pricing/,200,Pricing,Plans,Indexable,\"1,200\"\n" +
	"https://example.com/missing,404,Not Found,,Non-Indexable,20\n" +
	"https://example.com/blog,200,Blog,Our blog,Indexable,800\n"

func testRegistry(t *testing.T) *registry.DomainRegistry {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return reg
}

func csvServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAgent(t *testing.T, body string, status int) *Agent {
	t.Helper()
	srv := csvServer(t, body, status)
	log := logger.NewTestLogger(t)
	source := NewCSVSource(srv.URL, qhttp.NewClientFrom(srv.Client()), 0)
	return NewAgent(NewStore(source, log), testRegistry(t), plan.DefaultKeyPolicy(), log)
}

func buildPlan(t *testing.T, draft plan.SEODraft, anchors []string) *plan.SEOPlan {
	t.Helper()
	p, _, err := plan.BuildSEO(draft, testRegistry(t), anchors)
	require.NoError(t, err)
	return p
}

func TestNewDataset_DerivesColumns(t *testing.T) {
	cols, rows, err := ParseCSV(strings.NewReader(crawlCSV), 0)
	require.NoError(t, err)

	ds := NewDataset(cols, rows, "test")
	assert.Equal(t, "Address", ds.Columns[0])
	assert.True(t, ds.Has("Protocol"))
	assert.True(t, ds.Has("Title 1 Length"))
	assert.True(t, ds.Has("Meta Description 1 Length"))
	assert.False(t, ds.Has("H1-1 Length"))

	assert.Equal(t, "https", ds.Value(0, "Protocol"))
	assert.Equal(t, "http", ds.Value(1, "Protocol"))
	assert.Equal(t, "8", ds.Value(1, "Title 1 Length"))
	assert.Equal(t, "0", ds.Value(1, "Meta Description 1 Length"))
	assert.Equal(t, "", ds.Value(0, "No Such Column"))
}

func TestNewDataset_PadsShortRows(t *testing.T) {
	ds := NewDataset([]string{"Address", "Title 1"}, [][]string{{"https://a.test/"}, {"https://b.test/", "B", "extra"}}, "test")
	require.Equal(t, 2, ds.Len())
	for _, row := range ds.Rows {
		assert.Len(t, row, len(ds.Columns))
	}
	assert.Equal(t, "B", ds.Value(1, "Title 1"))
}

func TestParseCSV_MaxRows(t *testing.T) {
	_, rows, err := ParseCSV(strings.NewReader(crawlCSV), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, _, err = ParseCSV(strings.NewReader(""), 0)
	assert.Error(t, err)
}

// brokenStream yields body and then fails every further read.
type brokenStream struct {
	body io.Reader
}

func (b *brokenStream) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func TestParseCSV_StreamFailureIsReturned(t *testing.T) {
	partial := "Address,Status Code\nhttps://example.com/,200\nhttps://example.com/pri"

	done := make(chan error, 1)
	go func() {
		_, _, err := ParseCSV(&brokenStream{body: strings.NewReader(partial)}, 0)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(2 * time.Second):
		t.Fatal("ParseCSV did not return on a failing stream")
	}
}

func TestAgent_Run(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name     string
		draft    plan.SEODraft
		anchors  []string
		want     []models.Row
		total    int
		warnings []string
	}{
		{
			name:  "not https",
			draft: plan.SEOHints("Which pages are not using HTTPS?", reg),
			want:  []models.Row{{"Address": "http://example.com/old", "Protocol": "http"}},
			total: 1,
		},
		{
			name:  "group by indexability",
			draft: plan.SEODraft{GroupBy: "indexability"},
			want: []models.Row{
				{"Indexability": "Indexable", "count": int64(3)},
				{"Indexability": "Non-Indexable", "count": int64(2)},
			},
			total: 2,
		},
		{
			name: "mean per group",
			draft: plan.SEODraft{
				GroupBy:      "Indexability",
				Aggregations: []plan.Aggregation{{Column: "word count", Function: "avg"}},
			},
			want: []models.Row{
				{"Indexability": "Indexable", "Word Count_mean": 833.33},
				{"Indexability": "Non-Indexable", "Word Count_mean": int64(10)},
			},
			total: 2,
		},
		{
			name: "numeric filter sorted descending",
			draft: plan.SEODraft{
				Filters:       []plan.SEOFilter{{Column: "Word Count", Operator: ">", Value: 100}},
				SelectColumns: []string{"Word Count"},
				SortBy:        &plan.SortBy{Column: "Word Count", Desc: true},
			},
			want: []models.Row{
				{"Address": "https://example.com/pricing/", "Word Count": int64(1200)},
				{"Address": "https://example.com/blog", "Word Count": int64(800)},
				{"Address": "https://example.com/", "Word Count": int64(500)},
			},
			total: 3,
		},
		{
			name:     "limit adds note",
			draft:    plan.SEODraft{SelectColumns: []string{"Status Code"}, Limit: 2},
			want:     []models.Row{{"Address": "https://example.com/", "Status Code": int64(200)}, {"Address": "http://example.com/old", "Status Code": int64(301)}},
			total:    5,
			warnings: []string{"Note: Showing 2 of 5 results"},
		},
		{
			name:    "anchors restrict rows",
			draft:   plan.SEODraft{SelectColumns: []string{"Title 1"}},
			anchors: []string{"/pricing", "/"},
			want:    []models.Row{{"Address": "https://example.com/", "Title 1": "Home"}, {"Address": "https://example.com/pricing/", "Title 1": "Pricing"}},
			total:   2,
		},
		{
			name:     "missing columns degrade",
			draft:    plan.SEODraft{SelectColumns: []string{"Crawl Depth", "Title 1"}, Filters: []plan.SEOFilter{{Column: "Status Code", Operator: "==", Value: 404}}},
			want:     []models.Row{{"Address": "https://example.com/missing", "Title 1": "Not Found"}},
			total:    1,
			warnings: []string{"schema mismatch: missing columns: Crawl Depth"},
		},
		{
			name:  "empty result",
			draft: plan.SEODraft{Filters: []plan.SEOFilter{{Column: "Status Code", Operator: "==", Value: 500}}},
			want:  []models.Row{},
			total: 0,
		},
		{
			name:  "in list",
			draft: plan.SEODraft{Filters: []plan.SEOFilter{{Column: "Title 1", Operator: "in", Value: "home, blog"}}, SelectColumns: []string{"Title 1"}},
			want:  []models.Row{{"Address": "https://example.com/", "Title 1": "Home"}, {"Address": "https://example.com/blog", "Title 1": "Blog"}},
			total: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newTestAgent(t, crawlCSV, http.StatusOK)
			res, err := agent.Run(context.Background(), buildPlan(t, tt.draft, tt.anchors))
			require.NoError(t, err)
			assert.Equal(t, "seo", res.Domain)
			assert.Equal(t, tt.want, res.Rows)
			assert.Equal(t, tt.total, res.TotalRows)
			assert.Equal(t, tt.warnings, res.Warnings)
		})
	}
}

func TestAgent_AnchorsKeepOneRowPerKey(t *testing.T) {
	variants := "Address,Status Code,Title 1\n" +
		"http://example.com/pricing,301,Pricing (http)\n" +
		"https://example.com/pricing/,200,Pricing\n" +
		"https://example.com/pricing?ref=nav,200,Pricing (ref)\n" +
		"https://example.com/docs,200,Docs\n"
	agent := newTestAgent(t, variants, http.StatusOK)

	p := buildPlan(t, plan.SEODraft{SelectColumns: []string{"Title 1"}, Limit: 2}, []string{"/pricing", "/docs"})
	res, err := agent.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []models.Row{
		{"Address": "http://example.com/pricing", "Title 1": "Pricing (http)"},
		{"Address": "https://example.com/docs", "Title 1": "Docs"},
	}, res.Rows)
	assert.Equal(t, 2, res.TotalRows)
	assert.Empty(t, res.Warnings)
}

func TestAgent_RejectsUnvalidatedPlan(t *testing.T) {
	agent := newTestAgent(t, crawlCSV, http.StatusOK)
	_, err := agent.Run(context.Background(), &plan.SEOPlan{Limit: 10})
	assert.ErrorIs(t, err, plan.ErrUnvalidatedPlan)
}

func TestAgent_SourceUnreachable(t *testing.T) {
	agent := newTestAgent(t, "oops", http.StatusInternalServerError)
	_, err := agent.Run(context.Background(), buildPlan(t, plan.SEODraft{}, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataSourceUnreachable))
}

type countingSource struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (*Dataset, error) {
	n := s.calls.Add(1)
	if s.fail.Load() {
		return nil, errors.New("boom")
	}
	return NewDataset([]string{"Address"}, make([][]string, n), "counting"), nil
}

func TestStore_LoadsOnceAndKeepsSnapshotOnFailure(t *testing.T) {
	src := &countingSource{}
	store := NewStore(src, logger.NewTestLogger(t))
	ctx := context.Background()

	assert.False(t, store.Ready())
	first, err := store.Get(ctx)
	require.NoError(t, err)
	second, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, store.Ready())

	require.NoError(t, store.Reload(ctx))
	reloaded, _ := store.Get(ctx)
	assert.Equal(t, 2, reloaded.Len())

	src.fail.Store(true)
	assert.Error(t, store.Reload(ctx))
	kept, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, reloaded, kept)
}

// generationSource builds snapshot n with n rows, each tagged with n.
type generationSource struct {
	gen atomic.Int32
}

func (s *generationSource) Name() string { return "generation" }

func (s *generationSource) Load(ctx context.Context) (*Dataset, error) {
	n := int(s.gen.Add(1))
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(n)}
	}
	return NewDataset([]string{"Address"}, rows, "generation"), nil
}

func TestStore_ReadersSeeWholeSnapshotsDuringReload(t *testing.T) {
	src := &generationSource{}
	store := NewStore(src, logger.NewNoOpLogger())
	ctx := context.Background()
	_, err := store.Get(ctx)
	require.NoError(t, err)

	const reloads = 50
	stop := make(chan struct{})
	torn := make(chan string, 8)
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ds, err := store.Get(ctx)
				if err != nil {
					torn <- err.Error()
					return
				}
				want := strconv.Itoa(ds.Len())
				for i := 0; i < ds.Len(); i++ {
					if got := ds.Value(i, "Address"); got != want {
						torn <- "row " + strconv.Itoa(i) + " of snapshot " + want + " holds " + got
						return
					}
				}
			}
		}()
	}

	for i := 0; i < reloads; i++ {
		require.NoError(t, store.Reload(ctx))
	}
	close(stop)
	wg.Wait()
	close(torn)

	for msg := range torn {
		t.Errorf("inconsistent snapshot: %s", msg)
	}
	final, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, reloads+1, final.Len())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.csv")
	require.NoError(t, os.WriteFile(path, []byte(crawlCSV), 0o600))

	ds, err := NewFileSource(path, 0).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())

	_, err = NewFileSource(filepath.Join(t.TempDir(), "nope.csv"), 0).Load(context.Background())
	assert.Error(t, err)
}

func TestElasticsearchSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/crawl/_search"))
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_source":{"Address":"https://example.com/","Status Code":200,"Title 1":"Home","Zeta":true}},
			{"_source":{"Address":"http://example.com/old","Status Code":301}}
		]}}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	reg := testRegistry(t)
	src := NewElasticsearchSource(client, "crawl", 100, reg.AllowedFields(registry.DomainSEO))
	ds, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Address", "Status Code", "Title 1", "Zeta", "Protocol", "Title 1 Length"}, ds.Columns)
	assert.Equal(t, "200", ds.Value(0, "Status Code"))
	assert.Equal(t, "true", ds.Value(0, "Zeta"))
	assert.Equal(t, "", ds.Value(1, "Title 1"))
	assert.Equal(t, "http", ds.Value(1, "Protocol"))
}
