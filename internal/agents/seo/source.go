package seo

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	qhttp "query-orchestrator/internal/common/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Source loads a full crawl snapshot.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
	Name() string
}

// ParseCSV reads a header row followed by data rows. Malformed rows are skipped;
// a failing stream aborts the parse. maxRows <= 0 means unlimited.
func ParseCSV(r io.Reader, maxRows int) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	var rows [][]string
	for {
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, nil, fmt.Errorf("failed to read CSV row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// CSVSource fetches the export over HTTP(S), e.g. a Google Sheet published with
// export?format=csv.
type CSVSource struct {
	url     string
	client  *qhttp.Client
	maxRows int
}

func NewCSVSource(url string, client *qhttp.Client, maxRows int) *CSVSource {
	return &CSVSource{url: url, client: client, maxRows: maxRows}
}

func (s *CSVSource) Name() string { return "csv:" + s.url }

func (s *CSVSource) Load(ctx context.Context) (*Dataset, error) {
	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch crawl export: %w", err)
	}
	defer body.Close()

	cols, rows, err := ParseCSV(body, s.maxRows)
	if err != nil {
		return nil, err
	}
	return NewDataset(cols, rows, s.Name()), nil
}

type FileSource struct {
	path    string
	maxRows int
}

func NewFileSource(path string, maxRows int) *FileSource {
	return &FileSource{path: path, maxRows: maxRows}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Load(ctx context.Context) (*Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open crawl export: %w", err)
	}
	defer f.Close()

	cols, rows, err := ParseCSV(f, s.maxRows)
	if err != nil {
		return nil, err
	}
	return NewDataset(cols, rows, s.Name()), nil
}

// ElasticsearchSource reads a crawl export indexed one document per URL, with
// the export column names as document fields.
type ElasticsearchSource struct {
	client  *elasticsearch.Client
	index   string
	maxRows int
	order   []string
}

// NewElasticsearchSource orders columns by preferredOrder first, then alphabetically.
func NewElasticsearchSource(client *elasticsearch.Client, index string, maxRows int, preferredOrder []string) *ElasticsearchSource {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &ElasticsearchSource{client: client, index: index, maxRows: maxRows, order: preferredOrder}
}

func (s *ElasticsearchSource) Name() string { return "elasticsearch:" + s.index }

var errMissingIndex = errors.New("elasticsearch index name is required")

func (s *ElasticsearchSource) Load(ctx context.Context) (*Dataset, error) {
	if s.index == "" {
		return nil, errMissingIndex
	}

	body, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
	})
	size := s.maxRows
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search crawl index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search crawl index failed: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode crawl index response: %w", err)
	}

	seen := make(map[string]bool)
	for _, h := range r.Hits.Hits {
		for k := range h.Source {
			seen[k] = true
		}
	}
	cols := s.columnOrder(seen)

	rows := make([][]string, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cellString(h.Source[c])
		}
		rows = append(rows, row)
	}
	return NewDataset(cols, rows, s.Name()), nil
}

func (s *ElasticsearchSource) columnOrder(seen map[string]bool) []string {
	cols := make([]string, 0, len(seen))
	for _, c := range s.order {
		if seen[c] {
			cols = append(cols, c)
			delete(seen, c)
		}
	}
	rest := make([]string, 0, len(seen))
	for c := range seen {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
