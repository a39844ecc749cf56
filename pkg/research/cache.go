// Package research caches web search responses so repeated topic lookups
// across cycles do not burn through third-party rate limits.
package research

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/duskmoth/replybot/pkg/research/upgrades"
	"github.com/duskmoth/replybot/pkg/search"
)

const DefaultTTLSecs = 900

// Cache is a TTL-bounded sqlite cache of normalized search responses.
type Cache struct {
	db  *dbutil.Database
	ttl time.Duration
	log zerolog.Logger
}

// OpenCache opens (and migrates) the cache database at path.
func OpenCache(path string, ttlSecs int, log zerolog.Logger) (*Cache, error) {
	if ttlSecs <= 0 {
		ttlSecs = DefaultTTLSecs
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	raw, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		return nil, err
	}
	db.UpgradeTable = upgrades.Table
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "research_cache").Logger())
	if err := db.Upgrade(context.Background()); err != nil {
		return nil, err
	}
	return NewCache(db, ttlSecs, log), nil
}

// NewCache wraps an already opened database. Used by tests with :memory:.
func NewCache(db *dbutil.Database, ttlSecs int, log zerolog.Logger) *Cache {
	if ttlSecs <= 0 {
		ttlSecs = DefaultTTLSecs
	}
	return &Cache{
		db:  db,
		ttl: time.Duration(ttlSecs) * time.Second,
		log: log.With().Str("component", "research_cache").Logger(),
	}
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Get returns the cached response for the query if it is still fresh.
func (c *Cache) Get(ctx context.Context, query string) (*search.Response, bool, error) {
	if c == nil || c.db == nil {
		return nil, false, nil
	}
	var payload string
	var fetchedAt int64
	row := c.db.QueryRow(ctx,
		`SELECT payload, fetched_at FROM research_cache WHERE query=$1`,
		cacheKey(query),
	)
	if err := row.Scan(&payload, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if time.Since(time.UnixMilli(fetchedAt)) > c.ttl {
		return nil, false, nil
	}
	var resp search.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, false, nil
	}
	resp.Cached = true
	return &resp, true, nil
}

// Put stores the response for the query, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, query string, resp *search.Response) error {
	if c == nil || c.db == nil || resp == nil {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(ctx,
		`INSERT INTO research_cache (query, payload, fetched_at)
	     VALUES ($1, $2, $3)
	     ON CONFLICT (query) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
		cacheKey(query), string(payload), time.Now().UnixMilli(),
	)
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
