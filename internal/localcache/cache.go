package localcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
)

// StateKey is the fixed key of the AppState blob.
const StateKey = "ONYX_APP_DATA_V1"

// Drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the Store selected by driver. The returned close func is never nil.
func Open(driver, dir, sqlitePath string) (Store, func() error, error) {
	switch driver {
	case DriverFile, "":
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() error { return nil }, nil
	case DriverSQLite:
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("localcache: unknown driver %q: %w", driver, apperr.ErrInvalid)
	}
}

// Cache loads and saves the AppState blob.
type Cache struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	lastSum string // checksum of the last blob read or written
}

// New wraps store.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logger}
}

// Load returns the cached state. ok is false when nothing usable is stored:
// a missing key, an unreadable store and a corrupt blob all count as absent.
func (c *Cache) Load() (*models.AppState, bool) {
	data, err := c.store.Get(StateKey)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.logger.Warn("cache: load failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	s, err := decode(data)
	if err != nil {
		c.logger.Warn("cache: corrupt blob ignored", slog.String("error", err.Error()))
		return nil, false
	}
	c.remember(digest(data))
	return s, true
}

// Save writes s under the fixed key. Errors are logged and dropped.
func (c *Cache) Save(s *models.AppState) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error("cache: encode failed", slog.String("error", err.Error()))
		return
	}
	sum := digest(data)
	c.mu.Lock()
	unchanged := sum == c.lastSum
	c.mu.Unlock()
	if unchanged {
		return
	}
	if err := c.store.Set(StateKey, data); err != nil {
		c.logger.Warn("cache: save failed", slog.String("error", err.Error()))
		return
	}
	c.remember(sum)
}

func (c *Cache) remember(sum string) {
	c.mu.Lock()
	c.lastSum = sum
	c.mu.Unlock()
}

// seen reports whether sum matches the last blob this cache handled, and
// records it otherwise.
func (c *Cache) seen(sum string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sum == c.lastSum {
		return true
	}
	c.lastSum = sum
	return false
}

func decode(data []byte) (*models.AppState, error) {
	var s models.AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("localcache: decode: %w", err)
	}
	s.Normalize()
	return &s, nil
}

// digest identifies a blob so the cache can tell its own writes apart.
func digest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
