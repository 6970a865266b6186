// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"query-orchestrator/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

const elasticsearchPingTimeout = 5 * time.Second

// ErrIndexNotFound is returned when the crawl index is missing.
var ErrIndexNotFound = errors.New("elasticsearch index not found")

// ElasticsearchClient wraps the client serving the indexed crawl export.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	if !cfg.Enabled() {
		return nil, errors.New("elasticsearch address is not configured")
	}
	addresses := cfg.Addresses
	if len(addresses) == 0 {
		addresses = []string{cfg.GetURL()}
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, elasticsearchPingTimeout)
	defer cancel()

	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// IndexExists fails with ErrIndexNotFound when index is absent, so a misnamed
// crawl index surfaces at startup instead of on the first query.
func (c *ElasticsearchClient) IndexExists(ctx context.Context, index string) error {
	ctx, cancel := context.WithTimeout(ctx, elasticsearchPingTimeout)
	defer cancel()

	res, err := c.Client.Indices.Exists([]string{index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch index check failed: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrIndexNotFound, index)
	case res.IsError():
		return fmt.Errorf("elasticsearch index check error: %s", res.Status())
	}
	return nil
}
