// Package replica mirrors the AppState to a remote per-user document.
//
// Every Remote honours the same contract: Subscribe delivers the current
// document (or nil when none exists) as its first callback, then one callback
// per remote write including the subscriber's own. A failure, including an
// undecodable first document, is reported as exactly one callback carrying a
// nil document and the cause, followed by silence. The returned Unsubscribe
// is synchronous: once it returns no callback runs.
package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/starford/onyx/internal/models"
)

// Unsubscribe stops a subscription.
type Unsubscribe func()

// OnChange receives subscription callbacks. s is nil when the document is
// absent or the feed failed; err is non-nil only for the failure, which is
// always the last callback.
type OnChange func(s *models.AppState, err error)

// Remote is a per-user whole-document store with a change feed.
type Remote interface {
	Push(ctx context.Context, userID string, s *models.AppState) error
	Subscribe(ctx context.Context, userID string, onChange OnChange) (Unsubscribe, error)
}

// Drivers.
const (
	DriverHub    = "hub"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

func encode(s *models.AppState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("replica: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.AppState, error) {
	var s models.AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("replica: decode: %w", err)
	}
	s.Normalize()
	return &s, nil
}

// feed runs one subscription goroutine and makes stopping it synchronous.
type feed struct {
	cancel    context.CancelFunc
	interrupt func()
	done      chan struct{}
	once      sync.Once
}

// startFeed runs fn in a goroutine with a context cancelled by the returned
// Unsubscribe, which waits for fn to return. interrupt, when set, runs after
// the cancel to unblock reads that ignore the context.
func startFeed(parent context.Context, fn func(ctx context.Context), interrupt func()) Unsubscribe {
	ctx, cancel := context.WithCancel(parent)
	f := &feed{cancel: cancel, interrupt: interrupt, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		fn(ctx)
	}()
	return f.stop
}

func (f *feed) stop() {
	f.once.Do(func() {
		f.cancel()
		if f.interrupt != nil {
			f.interrupt()
		}
		<-f.done
	})
}
