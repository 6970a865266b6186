package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-orchestrator/internal/common/config"
)

func setupRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client), mr
}

func TestRedisClient_JSONRoundTrip(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))

	type payload struct {
		Rows int `json:"rows"`
	}
	require.NoError(t, rc.SetJSON(ctx, "k", payload{Rows: 3}, time.Minute))

	var got payload
	require.NoError(t, rc.GetJSON(ctx, "k", &got))
	assert.Equal(t, 3, got.Rows)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, rc.GetJSON(ctx, "k", &got), ErrCacheMiss)
}

func TestRedisClient_CacheCommands(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rc := NewRedisFromClient(client)
	ctx := context.Background()

	mock.ExpectSet("reasoning:abc", []byte(`{"rows":3}`), 10*time.Minute).SetVal("OK")
	mock.ExpectGet("reasoning:missing").RedisNil()
	mock.ExpectGet("reasoning:down").SetErr(errors.New("connection reset"))

	require.NoError(t, rc.SetJSON(ctx, "reasoning:abc", map[string]int{"rows": 3}, 10*time.Minute))

	var got map[string]int
	assert.ErrorIs(t, rc.GetJSON(ctx, "reasoning:missing", &got), ErrCacheMiss)

	err := rc.GetJSON(ctx, "reasoning:down", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)

	rc, err := NewRedis(config.RedisConfig{Address: "localhost:6379"})
	require.NoError(t, err)
	assert.NoError(t, rc.Close())
}

func TestNewElasticsearch_BuildsClient(t *testing.T) {
	es, err := NewElasticsearch(config.ElasticsearchConfig{URL: "http://localhost:9200"})
	require.NoError(t, err)
	assert.NotNil(t, es.Client)

	_, err = NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)
}

func TestElasticsearch_IndexExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		switch r.URL.Path {
		case "/seo-crawl":
			w.WriteHeader(http.StatusOK)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	es, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, es.IndexExists(ctx, "seo-crawl"))
	assert.ErrorIs(t, es.IndexExists(ctx, "missing"), ErrIndexNotFound)

	err = es.IndexExists(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIndexNotFound)
}

// ==========================
// Postgres
// ==========================

func TestNewPostgres_RequiresHost(t *testing.T) {
	_, err := NewPostgres(config.PostgresConfig{})
	assert.Error(t, err)

	pg, err := NewPostgres(config.PostgresConfig{Host: "localhost", Port: 5432, SSLMode: "disable", MaxConnections: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, pg.DB.Stats().MaxOpenConnections)
	assert.NoError(t, pg.Close())
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	pg := NewPostgresFromDB(db)
	defer pg.Close()

	mock.ExpectPing()
	assert.NoError(t, pg.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = pg.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}
