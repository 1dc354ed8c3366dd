package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/metrics"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/replica"
	"github.com/starford/onyx/internal/state"
	tu "github.com/starford/onyx/internal/testutil"
)

var ctx = context.Background()

type memCache struct {
	mu    sync.Mutex
	s     *models.AppState
	saves int
}

func (c *memCache) Load() (*models.AppState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s == nil {
		return nil, false
	}
	return c.s.Clone(), true
}

func (c *memCache) Save(s *models.AppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = s.Clone()
	c.saves++
}

func (c *memCache) snapshot() (*models.AppState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.Clone(), c.saves
}

// silentRemote accepts subscriptions but never calls back.
type silentRemote struct {
	mu     sync.Mutex
	pushes int
}

func (r *silentRemote) Push(context.Context, string, *models.AppState) error {
	r.mu.Lock()
	r.pushes++
	r.mu.Unlock()
	return nil
}

func (r *silentRemote) Subscribe(context.Context, string, replica.OnChange) (replica.Unsubscribe, error) {
	return func() {}, nil
}

// leakyRemote hands out its callback so tests can fire it after Unsubscribe.
type leakyRemote struct {
	mu       sync.Mutex
	onChange replica.OnChange
}

func (r *leakyRemote) Push(context.Context, string, *models.AppState) error { return nil }

func (r *leakyRemote) Subscribe(_ context.Context, _ string, fn replica.OnChange) (replica.Unsubscribe, error) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
	go fn(nil, nil)
	return func() {}, nil
}

func (r *leakyRemote) callback() replica.OnChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onChange
}

// laggyRemote delivers its feed only when the test says so and can fail
// pushes, so echoes can be replayed late.
type laggyRemote struct {
	mu       sync.Mutex
	initial  *models.AppState
	initErr  error
	onChange replica.OnChange
	pushed   []*models.AppState
	attempts int
	pushErr  error
}

func (r *laggyRemote) Push(_ context.Context, _ string, s *models.AppState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushed = append(r.pushed, s.Clone())
	return nil
}

func (r *laggyRemote) Subscribe(_ context.Context, _ string, fn replica.OnChange) (replica.Unsubscribe, error) {
	r.mu.Lock()
	r.onChange = fn
	initial, initErr := r.initial.Clone(), r.initErr
	r.mu.Unlock()
	go fn(initial, initErr)
	return func() {}, nil
}

func (r *laggyRemote) deliver(s *models.AppState) {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	fn(s, nil)
}

func (r *laggyRemote) failPushes(err error) {
	r.mu.Lock()
	r.pushErr = err
	r.mu.Unlock()
}

func (r *laggyRemote) counts() (attempts, pushed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts, len(r.pushed)
}

func (r *laggyRemote) pushedAt(i int) *models.AppState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed[i].Clone()
}

var day1 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func localState() *models.AppState {
	s := models.NewAppState("2024-05-01")
	s.Tasks = []models.Task{
		{ID: "d1", Title: "Meditate", Type: models.TaskDaily, Completed: true, Tags: []string{}},
		{ID: "s1", Title: "Local task", Type: models.TaskShortTerm, Tags: []string{}},
	}
	return s
}

func remoteState(title string) *models.AppState {
	s := models.NewAppState("2024-05-01")
	s.Tasks = []models.Task{{ID: "r1", Title: title, Type: models.TaskShortTerm, Tags: []string{}}}
	return s
}

type fixture struct {
	o     *Orchestrator
	cache *memCache
	clock *tu.Clock
	m     *metrics.Sync
}

func newFixture(t *testing.T, remote replica.Remote, cached *models.AppState) *fixture {
	t.Helper()
	f := &fixture{
		cache: &memCache{s: cached},
		clock: tu.NewClock(day1),
		m:     metrics.NewSync(nil),
	}
	o, err := New(Options{
		Cache:            f.cache,
		Remote:           remote,
		Logger:           tu.Logger(t),
		Now:              f.clock.Now,
		RolloverInterval: 10 * time.Millisecond,
		Metrics:          f.m,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)
	f.o = o
	return f
}

func (f *fixture) snapshot(t *testing.T) *models.AppState {
	t.Helper()
	s, err := f.o.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	st, err := f.o.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStartup_ReconcilesWithoutPersisting(t *testing.T) {
	cached := localState()
	cached.LastLoginDate = "2024-04-30"
	f := newFixture(t, nil, cached)

	s := f.snapshot(t)
	if s.LastLoginDate != "2024-05-01" || s.Tasks[0].Completed {
		t.Errorf("daily reset not applied on load: %+v", s)
	}
	if _, saves := f.cache.snapshot(); saves != 0 {
		t.Errorf("saved %d times before auth resolved", saves)
	}
	if st := f.status(t); st.Phase != PhaseLoading {
		t.Errorf("phase = %s", st.Phase)
	}

	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	got, saves := f.cache.snapshot()
	if saves != 1 || got.LastLoginDate != "2024-05-01" {
		t.Errorf("reset state not persisted on auth resolution: saves=%d %+v", saves, got)
	}
	if st := f.status(t); st.Phase != PhaseUnauthenticated {
		t.Errorf("phase = %s", st.Phase)
	}
}

func TestStartup_EmptyCache(t *testing.T) {
	f := newFixture(t, nil, nil)
	s := f.snapshot(t)
	if len(s.Tasks) != 0 || s.LastLoginDate != "2024-05-01" {
		t.Errorf("unexpected initial state %+v", s)
	}
}

func TestLocalMutation_Unauthenticated(t *testing.T) {
	remote := replica.NewMemory()
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}

	task, err := f.o.AddTask(ctx, models.Task{Title: "Buy milk", Priority: models.PriorityHigh})
	if err != nil {
		t.Fatal(err)
	}
	cached, _ := f.cache.snapshot()
	if len(cached.Tasks) != 3 || cached.Tasks[2].ID != task.ID {
		t.Errorf("mutation not cached: %+v", cached.Tasks)
	}
	if task.Type != models.TaskShortTerm || task.Completed {
		t.Errorf("task = %+v", task)
	}
	time.Sleep(50 * time.Millisecond)
	if remote.Pushes("") != 0 {
		t.Error("unauthenticated mutation pushed")
	}
}

func TestMutation_ErrorCommitsNothing(t *testing.T) {
	f := newFixture(t, nil, localState())
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	_, saves := f.cache.snapshot()
	if err := f.o.ToggleTask(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, err := f.o.AddObjective(ctx, models.Objective{Title: "no area"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v", err)
	}
	if _, after := f.cache.snapshot(); after != saves {
		t.Error("failed operation was persisted")
	}
}

func TestLogin_AdoptsRemoteWithoutEcho(t *testing.T) {
	remote := replica.NewMemory()
	if err := remote.Push(ctx, "u1", remoteState("From cloud")); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		s := f.snapshot(t)
		return len(s.Tasks) == 1 && s.Tasks[0].Title == "From cloud"
	}, "remote document not adopted")

	if st := f.status(t); st.Phase != PhaseSynced || st.Loading {
		t.Errorf("status = %+v", st)
	}
	cached, _ := f.cache.snapshot()
	if cached.Tasks[0].Title != "From cloud" {
		t.Error("remote snapshot not cached locally")
	}

	// Another device writes; the snapshot is applied and not pushed back.
	if err := remote.Push(ctx, "u1", remoteState("Other device")); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.snapshot(t).Tasks[0].Title == "Other device"
	}, "second snapshot not adopted")
	time.Sleep(50 * time.Millisecond)
	if n := remote.Pushes("u1"); n != 2 {
		t.Errorf("pushes = %d, want 2 (no echo)", n)
	}

	// The next local edit pushes normally.
	if _, err := f.o.AddTask(ctx, models.Task{Title: "Local edit"}); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		doc, ok := remote.Get("u1")
		return ok && len(doc.Tasks) == 2 && doc.Tasks[1].Title == "Local edit"
	}, "local edit not pushed")
	if got := testutil.ToFloat64(f.m.Transitions.WithLabelValues(string(OriginRemote))); got < 2 {
		t.Errorf("remote transitions = %v", got)
	}
}

func TestLogin_RemoteSnapshotIsReconciled(t *testing.T) {
	remote := replica.NewMemory()
	doc := remoteState("x")
	doc.LastLoginDate = "2024-04-30"
	doc.Tasks = append(doc.Tasks, models.Task{ID: "d", Type: models.TaskDaily, Completed: true, Tags: []string{}})
	if err := remote.Push(ctx, "u1", doc); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, remote, nil)
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		s := f.snapshot(t)
		return s.LastLoginDate == "2024-05-01" && len(s.Tasks) == 2 && !s.Tasks[1].Completed
	}, "remote snapshot not reconciled")
}

func TestLogin_NewUserSeedsRemote(t *testing.T) {
	remote := replica.NewMemory()
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		doc, ok := remote.Get("fresh")
		return ok && len(doc.Tasks) == 2
	}, "local state not pushed for a new user")

	s := f.snapshot(t)
	if len(s.Tasks) != 2 || s.Tasks[1].Title != "Local task" {
		t.Errorf("local state replaced: %+v", s.Tasks)
	}
	if st := f.status(t); st.Phase != PhaseSynced {
		t.Errorf("phase = %s", st.Phase)
	}
}

func TestSyncing_MutationsCachedNotPushed(t *testing.T) {
	remote := &silentRemote{}
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if st := f.status(t); st.Phase != PhaseSyncing || !st.Loading {
		t.Fatalf("status = %+v", st)
	}
	if _, err := f.o.AddNote(ctx, models.Note{Content: "draft"}); err != nil {
		t.Fatal(err)
	}
	cached, _ := f.cache.snapshot()
	if len(cached.Notes) != 1 {
		t.Error("mutation while syncing not cached")
	}
	time.Sleep(50 * time.Millisecond)
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.pushes != 0 {
		t.Errorf("pushed %d times while syncing", remote.pushes)
	}
}

func TestLogout_UnsubscribesAndReloadsCache(t *testing.T) {
	remote := replica.NewMemory()
	if err := remote.Push(ctx, "u1", remoteState("Cloud")); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.snapshot(t).Tasks[0].Title == "Cloud"
	}, "remote not adopted")

	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if remote.Subscribers("u1") != 0 {
		t.Error("subscription still live after logout")
	}
	st := f.status(t)
	if st.Phase != PhaseUnauthenticated || st.UserID != "" {
		t.Errorf("status = %+v", st)
	}
	// The cache holds the last mirrored state, which is what reloads.
	if s := f.snapshot(t); s.Tasks[0].Title != "Cloud" {
		t.Errorf("reloaded state = %+v", s.Tasks)
	}

	// Writes to the old user's document no longer reach us.
	if err := remote.Push(ctx, "u1", remoteState("Too late")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if s := f.snapshot(t); s.Tasks[0].Title == "Too late" {
		t.Error("snapshot applied after logout")
	}
}

func TestLogout_StaleCallbackDropped(t *testing.T) {
	remote := &leakyRemote{}
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Phase == PhaseSynced
	}, "first callback not processed")

	stale := remote.callback()
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	before := f.snapshot(t)

	done := make(chan struct{})
	go func() {
		stale(remoteState("Stale"), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stale callback blocked")
	}
	after := f.snapshot(t)
	if len(after.Tasks) != len(before.Tasks) || after.Tasks[0].Title != before.Tasks[0].Title {
		t.Errorf("stale snapshot applied: %+v", after.Tasks)
	}
}

func TestSwitchUser_DropsPreviousSession(t *testing.T) {
	remote := replica.NewMemory()
	_ = remote.Push(ctx, "alice", remoteState("Alice"))
	_ = remote.Push(ctx, "bob", remoteState("Bob"))
	f := newFixture(t, remote, nil)

	if err := f.o.SetUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.snapshot(t).Tasks[0].Title == "Alice"
	}, "alice not adopted")
	if err := f.o.SetUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.snapshot(t).Tasks[0].Title == "Bob"
	}, "bob not adopted")
	if remote.Subscribers("alice") != 0 {
		t.Error("alice still subscribed")
	}
	if st := f.status(t); st.UserID != "bob" {
		t.Errorf("user = %q", st.UserID)
	}
}

func TestRemoteError_Degrades(t *testing.T) {
	remote := replica.NewMemory()
	_ = remote.Push(ctx, "u1", remoteState("Cloud"))
	f := newFixture(t, remote, nil)
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Phase == PhaseSynced
	}, "not synced")

	remote.Fail("u1", errors.New("connection reset"))
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Degraded
	}, "not degraded after remote error")

	// State is left as is and edits keep working locally.
	if s := f.snapshot(t); s.Tasks[0].Title != "Cloud" {
		t.Errorf("state changed on error: %+v", s.Tasks)
	}
	if _, err := f.o.AddTask(ctx, models.Task{Title: "Offline edit"}); err != nil {
		t.Fatal(err)
	}
	cached, _ := f.cache.snapshot()
	if len(cached.Tasks) != 2 {
		t.Error("offline edit not cached")
	}
	if testutil.ToFloat64(f.m.Degraded) != 1 {
		t.Error("degraded gauge not set")
	}
	time.Sleep(50 * time.Millisecond)
	if testutil.ToFloat64(f.m.PushErrors) != 0 {
		t.Error("degraded session attempted a push")
	}
}

func TestDayRollover(t *testing.T) {
	f := newFixture(t, nil, localState())
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(24 * time.Hour)
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		s := f.snapshot(t)
		return s.LastLoginDate == "2024-05-02" && !s.Tasks[0].Completed
	}, "daily tasks not reset at rollover")
	tu.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		cached, _ := f.cache.snapshot()
		return cached.LastLoginDate == "2024-05-02"
	}, "rollover not persisted")
}

func TestApplyExternal_OnlyWhenSignedOut(t *testing.T) {
	remote := replica.NewMemory()
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	_, saves := f.cache.snapshot()

	ext := localState()
	ext.Notes = []models.Note{{ID: "n-1", Title: "From another window"}}
	if err := f.o.ApplyExternal(ctx, ext); err != nil {
		t.Fatal(err)
	}
	if len(f.snapshot(t).Notes) != 1 {
		t.Error("external change not applied while signed out")
	}
	if _, after := f.cache.snapshot(); after != saves {
		t.Error("external change written back to the cache")
	}

	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := f.o.ApplyExternal(ctx, localState()); err != nil {
		t.Fatal(err)
	}
	if len(f.snapshot(t).Notes) != 1 {
		t.Error("external change applied while signed in")
	}
}

func TestWatch_ReceivesChanges(t *testing.T) {
	f := newFixture(t, nil, nil)
	var mu sync.Mutex
	var changes []Change
	stop, err := f.o.Watch(ctx, func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.o.AddArea(ctx, models.LifeArea{}); err != nil {
		t.Fatal(err)
	}
	stop()
	if _, err := f.o.AddArea(ctx, models.LifeArea{}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].State != nil || changes[0].Status.Phase != PhaseUnauthenticated {
		t.Errorf("first change should be status-only: %+v", changes[0])
	}
	if changes[1].Origin != OriginLocal || len(changes[1].State.Areas) != 1 {
		t.Errorf("second change = %+v", changes[1])
	}
}

func TestEntityWrappers(t *testing.T) {
	f := newFixture(t, nil, nil)
	if err := f.o.SetUser(ctx, ""); err != nil {
		t.Fatal(err)
	}
	area, err := f.o.AddArea(ctx, models.LifeArea{Name: "Health"})
	if err != nil {
		t.Fatal(err)
	}
	ob, err := f.o.AddObjective(ctx, models.Objective{Title: "Run 10k", AreaID: area.ID})
	if err != nil {
		t.Fatal(err)
	}
	m, err := f.o.AddMilestone(ctx, models.Milestone{Title: "5k", ObjectiveID: ob.ID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.o.ToggleMilestone(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.o.AddTask(ctx, models.Task{Title: "Stretch", AreaID: area.ID, Type: models.TaskLifeArea}); err != nil {
		t.Fatal(err)
	}
	name := "Fitness"
	if err := f.o.UpdateArea(ctx, area.ID, state.AreaPatch{Name: &name}); err != nil {
		t.Fatal(err)
	}
	if err := f.o.DeleteArea(ctx, area.ID); err != nil {
		t.Fatal(err)
	}
	s := f.snapshot(t)
	if len(s.Areas) != 0 || len(s.Objectives) != 0 || len(s.Tasks) != 0 {
		t.Errorf("cascade incomplete: %+v", s)
	}
	if len(s.Milestones) != 1 || !s.Milestones[0].Completed {
		t.Errorf("orphaned milestone not preserved: %+v", s.Milestones)
	}
}

func TestClose_RejectsCalls(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.o.Close()
	if _, err := f.o.Snapshot(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
}

func titles(s *models.AppState) []string {
	out := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		out = append(out, t.Title)
	}
	return out
}

func hasTitle(s *models.AppState, title string) bool {
	for _, t := range s.Tasks {
		if t.Title == title {
			return true
		}
	}
	return false
}

func TestOwnEcho_SupersededPushDoesNotRollBack(t *testing.T) {
	remote := &laggyRemote{initial: remoteState("cloud")}
	f := newFixture(t, remote, nil)
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Phase == PhaseSynced
	}, "not synced")

	if _, err := f.o.AddTask(ctx, models.Task{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		_, pushed := remote.counts()
		return pushed == 1
	}, "A not pushed")
	echoA := remote.pushedAt(0)

	remote.failPushes(errors.New("offline"))
	if _, err := f.o.AddTask(ctx, models.Task{Title: "B"}); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		attempts, _ := remote.counts()
		return attempts == 2
	}, "B push not attempted")

	// The feed replays A after B was committed locally.
	remote.deliver(echoA)

	s := f.snapshot(t)
	if !hasTitle(s, "B") {
		t.Fatalf("local edit rolled back by own echo: %v", titles(s))
	}
	cached, _ := f.cache.snapshot()
	if !hasTitle(cached, "B") {
		t.Fatalf("cache rolled back by own echo: %v", titles(cached))
	}
	if got := testutil.ToFloat64(f.m.StaleCallbacks); got != 1 {
		t.Errorf("stale callbacks = %v, want 1", got)
	}

	// A write from another device still wins.
	remote.deliver(remoteState("other device"))
	if s := f.snapshot(t); len(s.Tasks) != 1 || s.Tasks[0].Title != "other device" {
		t.Errorf("foreign snapshot not adopted: %v", titles(s))
	}
}

func TestOwnEcho_CurrentStateIsNotRecommitted(t *testing.T) {
	remote := &laggyRemote{initial: remoteState("cloud")}
	f := newFixture(t, remote, nil)
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Phase == PhaseSynced
	}, "not synced")
	if _, err := f.o.AddTask(ctx, models.Task{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		_, pushed := remote.counts()
		return pushed == 1
	}, "A not pushed")

	before := testutil.ToFloat64(f.m.Transitions.WithLabelValues(string(OriginRemote)))
	remote.deliver(remote.pushedAt(0))
	_ = f.snapshot(t)
	if got := testutil.ToFloat64(f.m.Transitions.WithLabelValues(string(OriginRemote))); got != before {
		t.Errorf("echo of the current state committed again: %v -> %v", before, got)
	}
	if s := f.snapshot(t); !hasTitle(s, "A") {
		t.Errorf("state lost: %v", titles(s))
	}
}

func TestRemoteFailureBeforeFirstDocument_DegradesWithoutSeeding(t *testing.T) {
	remote := &laggyRemote{initErr: errors.New("document unavailable")}
	f := newFixture(t, remote, localState())
	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.status(t).Degraded
	}, "not degraded")

	st := f.status(t)
	if st.Phase != PhaseSynced || st.Loading {
		t.Errorf("status = %+v", st)
	}
	if _, err := f.o.AddTask(ctx, models.Task{Title: "Offline"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if attempts, _ := remote.counts(); attempts != 0 {
		t.Errorf("failed subscription seeded the remote: %d pushes", attempts)
	}
	if s := f.snapshot(t); len(s.Tasks) != 3 {
		t.Errorf("local state changed: %v", titles(s))
	}
}

func TestLoginAfterDateChange_PersistsReset(t *testing.T) {
	f := newFixture(t, &silentRemote{}, localState())
	f.clock.Advance(24 * time.Hour)
	time.Sleep(30 * time.Millisecond) // let the rollover ticker run in PhaseLoading

	if err := f.o.SetUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	cached, saves := f.cache.snapshot()
	if saves == 0 {
		t.Fatal("reset state never written to the cache")
	}
	if cached.LastLoginDate != "2024-05-02" || cached.Tasks[0].Completed {
		t.Errorf("cached state not reset: date %s, daily done %v", cached.LastLoginDate, cached.Tasks[0].Completed)
	}
}
