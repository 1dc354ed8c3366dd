// Package syncer owns the authoritative AppState and sequences every change
// to it: local edits, remote snapshots, external cache rewrites and reloads.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/onyx/internal/metrics"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/replica"
	"github.com/starford/onyx/internal/state"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("syncer: orchestrator closed")

// Phase is the auth/sync phase of the orchestrator.
type Phase string

// Phases.
const (
	PhaseLoading         Phase = "loading"         // auth not resolved yet
	PhaseUnauthenticated Phase = "unauthenticated" // local-only
	PhaseSyncing         Phase = "syncing"         // signed in, waiting for the first snapshot
	PhaseSynced          Phase = "synced"          // signed in, mirrored
)

// Origin tags a state transition with where it came from. It decides what
// persistence follows.
type Origin string

// Origins.
const (
	OriginLocal  Origin = "local"  // user edit: cache and push
	OriginRemote Origin = "remote" // replica snapshot: cache, never push
	OriginCache  Origin = "cache"  // rewritten by another process: nothing
	OriginReload Origin = "reload" // cache reload on logout: cache
)

// Status describes the sync session.
type Status struct {
	Phase    Phase  `json:"phase"`
	UserID   string `json:"userId,omitempty"`
	Degraded bool   `json:"degraded"`
	Loading  bool   `json:"loading"`
}

// Change is delivered to watchers after every committed transition. State
// is nil for status-only changes.
type Change struct {
	Origin Origin           `json:"origin,omitempty"`
	State  *models.AppState `json:"state,omitempty"`
	Status Status           `json:"status"`
}

// Cache is the local persistence the orchestrator needs.
type Cache interface {
	Load() (*models.AppState, bool)
	Save(s *models.AppState)
}

// Options configures an Orchestrator.
type Options struct {
	Cache  Cache
	Remote replica.Remote // nil runs every session local-only
	Logger *slog.Logger

	Now      func() time.Time
	Location *time.Location // calendar of "today"; defaults to UTC

	// RolloverInterval is how often the date is checked for a daily reset
	// while running.
	RolloverInterval time.Duration
	PushTimeout      time.Duration
	Metrics          *metrics.Sync
}

type remoteMsg struct {
	gen uint64
	doc *models.AppState
	err error
}

// maxSent bounds the fingerprints kept for own pushes awaiting their echo.
const maxSent = 64

type pushReq struct {
	gen    uint64
	userID string
	doc    *models.AppState
}

// Orchestrator is the single owner of the AppState.
//
// Concurrency model: one event loop goroutine owns the state, the phase and
// the subscription. Public methods send closures to the loop and wait for
// them to run; remote callbacks arrive on their own channel tagged with the
// generation of the subscription that produced them.
type Orchestrator struct {
	cache    Cache
	remote   replica.Remote
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	rollover time.Duration
	pushTO   time.Duration
	metrics  *metrics.Sync
	ops      *state.Ops

	reqCh    chan func()
	remoteCh chan remoteMsg
	pushCh   chan pushReq // single slot, newest snapshot wins
	liveGen  atomic.Uint64

	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopCh     chan struct{}
	stopped    chan struct{}
	pusherDone chan struct{}
	closed     atomic.Bool

	// Loop-owned.
	cur       *models.AppState
	phase     Phase
	userID    string
	degraded  bool
	gen       uint64
	firstSeen bool
	deferred  bool     // a transition was committed in PhaseLoading
	sent      []string // fingerprints of this session's pushes, oldest first
	subCancel context.CancelFunc
	unsub     replica.Unsubscribe
	watchers  map[int]func(Change)
	nextWatch int
}

// New loads the cached state, applies the daily reset and starts the loop in
// PhaseLoading. Nothing is persisted until the first SetUser call.
func New(opts Options) (*Orchestrator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("syncer: cache is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RolloverInterval <= 0 {
		opts.RolloverInterval = time.Minute
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 15 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewSync(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cache:      opts.Cache,
		remote:     opts.Remote,
		logger:     opts.Logger,
		now:        opts.Now,
		loc:        opts.Location,
		rollover:   opts.RolloverInterval,
		pushTO:     opts.PushTimeout,
		metrics:    opts.Metrics,
		ops:        state.NewOps(opts.Now),
		reqCh:      make(chan func()),
		remoteCh:   make(chan remoteMsg),
		pushCh:     make(chan pushReq, 1),
		baseCtx:    ctx,
		baseCancel: cancel,
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
		pusherDone: make(chan struct{}),
		phase:      PhaseLoading,
		watchers:   make(map[int]func(Change)),
	}

	today := o.today()
	if cached, ok := o.cache.Load(); ok {
		o.cur = state.Reconcile(cached, today)
	} else {
		o.cur = models.NewAppState(today)
	}

	go o.run()
	go o.pusher()
	return o, nil
}

func (o *Orchestrator) today() string {
	return state.Today(o.now().In(o.loc))
}

// Today returns the current calendar date in the orchestrator's location.
func (o *Orchestrator) Today() string {
	return o.today()
}

// Now returns the orchestrator's clock in its location.
func (o *Orchestrator) Now() time.Time {
	return o.now().In(o.loc)
}

func (o *Orchestrator) run() {
	defer close(o.stopped)

	tick := time.NewTicker(o.rollover)
	defer tick.Stop()

	for {
		select {
		case <-o.stopCh:
			o.endSession()
			return

		case fn := <-o.reqCh:
			fn()

		case msg := <-o.remoteCh:
			o.handleRemote(msg)

		case <-tick.C:
			today := o.today()
			if o.cur.LastLoginDate != today {
				o.logger.Info("syncer: day rollover", slog.String("date", today))
				o.commit(state.Reconcile(o.cur, today), OriginLocal)
			}
		}
	}
}

// Close stops the loop, ends any subscription and waits for the pusher.
func (o *Orchestrator) Close() {
	if o.closed.CompareAndSwap(false, true) {
		close(o.stopCh)
	}
	<-o.stopped
	o.baseCancel()
	<-o.pusherDone
}

// do runs fn on the loop and waits for it to finish.
func (o *Orchestrator) do(ctx context.Context, fn func()) error {
	if o.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case o.reqCh <- func() { fn(); close(done) }:
	case <-o.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// --- auth transitions ---

// SetUser reports the auth collaborator's current user; "" means signed
// out. The first call resolves PhaseLoading.
func (o *Orchestrator) SetUser(ctx context.Context, userID string) error {
	return o.do(ctx, func() { o.setUser(userID) })
}

func (o *Orchestrator) setUser(userID string) {
	switch {
	case o.phase == PhaseLoading && userID == "":
		o.phase = PhaseUnauthenticated
		o.deferred = false
		o.cache.Save(o.cur)
		o.notifyStatus()
	case o.phase == PhaseLoading:
		o.login(userID)
	case userID == o.userID:
		// Repeated auth event for the same user.
	case userID == "":
		o.logout()
	case o.userID != "":
		o.logout()
		o.login(userID)
	default:
		o.login(userID)
	}
}

func (o *Orchestrator) login(userID string) {
	o.gen++
	o.liveGen.Store(o.gen)
	o.userID = userID
	o.degraded = false
	o.firstSeen = false
	o.sent = nil
	o.metrics.Degraded.Set(0)

	if o.remote == nil {
		o.phase = PhaseSynced
		o.logger.Info("syncer: no remote configured, session is local-only", slog.String("user", userID))
		o.settle()
		o.notifyStatus()
		return
	}

	o.phase = PhaseSyncing
	o.settle()
	subCtx, cancel := context.WithCancel(o.baseCtx)
	gen := o.gen
	unsub, err := o.remote.Subscribe(subCtx, userID, func(doc *models.AppState, err error) {
		select {
		case o.remoteCh <- remoteMsg{gen: gen, doc: doc, err: err}:
		case <-subCtx.Done():
		}
	})
	if err != nil {
		cancel()
		o.logger.Warn("syncer: subscribe failed", slog.String("user", userID), slog.String("error", err.Error()))
		o.phase = PhaseSynced
		o.setDegraded()
		o.notifyStatus()
		return
	}
	o.subCancel = cancel
	o.unsub = unsub
	o.logger.Info("syncer: subscribed", slog.String("user", userID), slog.Uint64("generation", gen))
	o.notifyStatus()
}

func (o *Orchestrator) logout() {
	o.logger.Info("syncer: signed out", slog.String("user", o.userID))
	o.endSession()
	o.userID = ""
	o.degraded = false
	o.metrics.Degraded.Set(0)
	o.phase = PhaseUnauthenticated

	if cached, ok := o.cache.Load(); ok {
		o.commit(state.Reconcile(cached, o.today()), OriginReload)
		return
	}
	o.notifyStatus()
}

// settle runs once the phase has left PhaseLoading: it writes a transition
// deferred during loading and applies the daily reset if the date moved on.
func (o *Orchestrator) settle() {
	if today := o.today(); o.cur.LastLoginDate != today {
		o.deferred = false
		o.commit(state.Reconcile(o.cur, today), OriginLocal)
		return
	}
	if o.deferred {
		o.deferred = false
		o.cache.Save(o.cur)
	}
}

// endSession stops the subscription synchronously; nothing it delivered
// afterwards is applied.
func (o *Orchestrator) endSession() {
	o.gen++
	o.liveGen.Store(o.gen)
	if o.subCancel != nil {
		o.subCancel()
		o.subCancel = nil
	}
	if o.unsub != nil {
		o.unsub()
		o.unsub = nil
	}
}

func (o *Orchestrator) setDegraded() {
	o.degraded = true
	o.metrics.Degraded.Set(1)
}

// --- remote snapshots ---

func (o *Orchestrator) handleRemote(msg remoteMsg) {
	if msg.gen != o.gen || (o.phase != PhaseSyncing && o.phase != PhaseSynced) {
		o.metrics.StaleCallbacks.Inc()
		o.logger.Debug("syncer: stale callback dropped", slog.Uint64("generation", msg.gen))
		return
	}

	first := !o.firstSeen
	o.firstSeen = true
	o.phase = PhaseSynced

	switch {
	case msg.err != nil:
		o.logger.Warn("syncer: remote error, continuing local-only", slog.String("user", o.userID), slog.String("error", msg.err.Error()))
		o.setDegraded()
		o.notifyStatus()
	case msg.doc == nil && first:
		// New user: the local state seeds the remote document.
		o.logger.Info("syncer: remote document absent, seeding", slog.String("user", o.userID))
		o.notifyStatus()
		o.schedulePush()
	case msg.doc == nil:
		o.logger.Warn("syncer: remote document vanished, continuing local-only", slog.String("user", o.userID))
		o.setDegraded()
		o.notifyStatus()
	case o.ownEcho(msg.doc):
	default:
		o.sent = nil
		o.metrics.RemoteSnapshots.Inc()
		o.commit(state.Reconcile(msg.doc, o.today()), OriginRemote)
	}
}

// ownEcho reports whether doc is this session's own push coming back. The
// feed is ordered, so the match and every older push are forgotten. An echo
// of the current state changes nothing; an echo of a push that a newer local
// transition has superseded would roll that transition back.
func (o *Orchestrator) ownEcho(doc *models.AppState) bool {
	fp := fingerprint(doc)
	for i, sent := range o.sent {
		if sent != fp {
			continue
		}
		o.sent = o.sent[i+1:]
		if fp != fingerprint(o.cur) {
			o.metrics.StaleCallbacks.Inc()
			o.logger.Debug("syncer: superseded echo of own push dropped", slog.String("user", o.userID))
		}
		return true
	}
	return false
}

// --- external cache changes ---

// ApplyExternal adopts a state written to the cache by another process.
// It only applies while signed out; signed in, the replica is the source.
func (o *Orchestrator) ApplyExternal(ctx context.Context, s *models.AppState) error {
	return o.do(ctx, func() {
		if o.phase != PhaseUnauthenticated {
			return
		}
		o.commit(state.Reconcile(s, o.today()), OriginCache)
	})
}

// --- commit & persistence ---

func (o *Orchestrator) commit(next *models.AppState, origin Origin) {
	o.cur = next
	o.metrics.Transitions.WithLabelValues(string(origin)).Inc()
	o.persist(origin)
	if len(o.watchers) == 0 {
		return
	}
	ch := Change{Origin: origin, State: o.cur.Clone(), Status: o.status()}
	for _, fn := range o.watchers {
		fn(ch)
	}
}

func (o *Orchestrator) persist(origin Origin) {
	if o.phase == PhaseLoading {
		o.deferred = o.deferred || origin != OriginCache
		return
	}
	switch origin {
	case OriginLocal:
		o.cache.Save(o.cur)
		if o.phase == PhaseSynced {
			o.schedulePush()
		}
	case OriginRemote, OriginReload:
		o.cache.Save(o.cur)
	case OriginCache:
	}
}

func (o *Orchestrator) schedulePush() {
	if o.remote == nil || o.degraded || o.userID == "" {
		return
	}
	req := pushReq{gen: o.gen, userID: o.userID, doc: o.cur.Clone()}
	o.sent = append(o.sent, fingerprint(req.doc))
	if len(o.sent) > maxSent {
		o.sent = o.sent[len(o.sent)-maxSent:]
	}
	select {
	case <-o.pushCh:
	default:
	}
	o.pushCh <- req
}

func (o *Orchestrator) pusher() {
	defer close(o.pusherDone)
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case req := <-o.pushCh:
			if req.gen != o.liveGen.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(o.baseCtx, o.pushTO)
			err := o.remote.Push(ctx, req.userID, req.doc)
			cancel()
			if err != nil {
				o.metrics.PushErrors.Inc()
				o.logger.Warn("syncer: push failed", slog.String("user", req.userID), slog.String("error", err.Error()))
				continue
			}
			o.metrics.Pushes.Inc()
		}
	}
}

// --- observation ---

func (o *Orchestrator) status() Status {
	return Status{
		Phase:    o.phase,
		UserID:   o.userID,
		Degraded: o.degraded,
		Loading:  o.phase == PhaseSyncing,
	}
}

func (o *Orchestrator) notifyStatus() {
	ch := Change{Status: o.status()}
	for _, fn := range o.watchers {
		fn(ch)
	}
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (*models.AppState, error) {
	var out *models.AppState
	err := o.do(ctx, func() { out = o.cur.Clone() })
	return out, err
}

// Status returns the session status.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var out Status
	err := o.do(ctx, func() { out = o.status() })
	return out, err
}

// Watch registers fn for every committed change and returns a func that
// removes it. fn runs on the loop goroutine: it must not block and must not
// call back into the orchestrator.
func (o *Orchestrator) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	var id int
	err := o.do(ctx, func() {
		id = o.nextWatch
		o.nextWatch++
		o.watchers[id] = fn
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = o.do(context.Background(), func() { delete(o.watchers, id) })
	}, nil
}

// fingerprint identifies a document by content. Missing collections count
// as empty so a document matches its own decoded echo.
func fingerprint(s *models.AppState) string {
	c := s.Clone()
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
