package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
)

// Memory is an in-process Remote. It backs the offline profile and tests.
type Memory struct {
	mu      sync.Mutex
	docs    map[string][]byte
	subs    map[string]map[*memSub]struct{}
	pushes  map[string]int
	pushErr error
}

type memSub struct {
	latest chan []byte // single slot, newest document wins
	fail   chan struct{}
	failed bool
	err    error // set before fail closes
}

// NewMemory returns an empty in-memory replica.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string][]byte),
		subs:   make(map[string]map[*memSub]struct{}),
		pushes: make(map[string]int),
	}
}

// Push stores s as the user's document and notifies every subscriber.
func (m *Memory) Push(_ context.Context, userID string, s *models.AppState) error {
	if userID == "" {
		return fmt.Errorf("replica: empty user id: %w", apperr.ErrInvalid)
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.docs[userID] = data
	m.pushes[userID]++
	for sub := range m.subs[userID] {
		select {
		case <-sub.latest:
		default:
		}
		sub.latest <- data
	}
	return nil
}

// Subscribe registers onChange for userID.
func (m *Memory) Subscribe(ctx context.Context, userID string, onChange OnChange) (Unsubscribe, error) {
	if userID == "" {
		return nil, fmt.Errorf("replica: empty user id: %w", apperr.ErrInvalid)
	}
	sub := &memSub{latest: make(chan []byte, 1), fail: make(chan struct{})}

	m.mu.Lock()
	initial := m.docs[userID]
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[*memSub]struct{})
	}
	m.subs[userID][sub] = struct{}{}
	m.mu.Unlock()

	stop := startFeed(ctx, func(ctx context.Context) {
		defer func() {
			m.mu.Lock()
			delete(m.subs[userID], sub)
			m.mu.Unlock()
		}()

		if initial == nil {
			onChange(nil, nil)
		} else if s, err := decode(initial); err == nil {
			onChange(s, nil)
		} else {
			onChange(nil, err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.fail:
				if ctx.Err() == nil {
					onChange(nil, sub.err)
				}
				<-ctx.Done()
				return
			case data := <-sub.latest:
				if s, err := decode(data); err == nil {
					onChange(s, nil)
				}
			}
		}
	}, nil)
	return stop, nil
}

// Put stores raw bytes as the user's document without notifying anyone. It
// lets tests plant documents other clients could have written.
func (m *Memory) Put(userID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[userID] = append([]byte(nil), data...)
}

// Get returns a copy of the stored document.
func (m *Memory) Get(userID string) (*models.AppState, bool) {
	m.mu.Lock()
	data := m.docs[userID]
	m.mu.Unlock()
	if data == nil {
		return nil, false
	}
	s, err := decode(data)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Pushes counts the successful pushes for userID.
func (m *Memory) Pushes(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes[userID]
}

// Subscribers counts the live subscriptions for userID.
func (m *Memory) Subscribers(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[userID])
}

// Fail simulates a transport error on every live subscription of userID and
// makes subsequent pushes fail with err.
func (m *Memory) Fail(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
	feedErr := err
	if feedErr == nil {
		feedErr = errors.New("replica: memory feed failed")
	}
	for sub := range m.subs[userID] {
		if !sub.failed {
			sub.failed = true
			sub.err = feedErr
			close(sub.fail)
		}
	}
}
