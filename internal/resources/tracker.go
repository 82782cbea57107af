// Package resources tracks transient resources (buffers, engine handles, temp
// files, streams) so they are released exactly once on success, failure, or
// process shutdown.
package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a tracked resource.
type Kind string

const (
	KindFile   Kind = "file"
	KindBuffer Kind = "buffer"
	KindWorker Kind = "worker"
	KindStream Kind = "stream"
)

// ReleaseFunc frees a resource. It is called at most once.
type ReleaseFunc func() error

// Resource is a registered entry.
type Resource struct {
	ID        string
	Kind      Kind
	Path      string
	CreatedAt time.Time

	release ReleaseFunc
}

// Stats reports the tracker's current state.
type Stats struct {
	Total    int          `json:"total"`
	ByKind   map[Kind]int `json:"by_kind"`
	Released int64        `json:"released"`
	Failed   int64        `json:"failed"`
}

// Tracker is a concurrency-safe registry of live resources.
type Tracker struct {
	mu        sync.Mutex
	resources map[string]*Resource
	hooks     []func(context.Context) error
	released  int64
	failed    int64

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source (used by stale sweeps).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		resources: make(map[string]*Resource),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "resource_tracker")
	return t
}

// Track registers a resource and returns its id.
// A file resource without a release func removes path when released.
func (t *Tracker) Track(kind Kind, release ReleaseFunc, path string) string {
	if release == nil && kind == KindFile && path != "" {
		release = func() error { return removeFile(path) }
	}
	r := &Resource{
		ID:        uuid.New().String(),
		Kind:      kind,
		Path:      path,
		CreatedAt: t.now(),
		release:   release,
	}

	t.mu.Lock()
	t.resources[r.ID] = r
	t.mu.Unlock()

	return r.ID
}

// Release frees the resource with the given id. Unknown ids are ignored.
// Failures are logged and counted, never returned.
func (t *Tracker) Release(id string) {
	r := t.take(id)
	if r == nil {
		return
	}
	_ = t.run(r)
}

// ReleaseByKind releases every resource of the given kind. It keeps going past
// failures and returns them joined.
func (t *Tracker) ReleaseByKind(kind Kind) error {
	return t.releaseWhere(func(r *Resource) bool { return r.Kind == kind })
}

// ReleaseAll releases every tracked resource.
func (t *Tracker) ReleaseAll() error {
	return t.releaseWhere(func(*Resource) bool { return true })
}

// SweepStale releases resources older than maxAge and returns how many were
// swept.
func (t *Tracker) SweepStale(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	var stale []*Resource

	t.mu.Lock()
	for id, r := range t.resources {
		if r.CreatedAt.Before(cutoff) {
			stale = append(stale, r)
			delete(t.resources, id)
		}
	}
	t.mu.Unlock()

	for _, r := range stale {
		t.logger.Warn("releasing stale resource", "id", r.ID, "kind", r.Kind, "age", t.now().Sub(r.CreatedAt).Round(time.Second))
		_ = t.run(r)
	}
	return len(stale)
}

// StartSweeper runs SweepStale every interval until ctx is cancelled.
func (t *Tracker) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.SweepStale(maxAge); n > 0 {
					t.logger.Info("stale sweep complete", "released", n)
				}
			}
		}
	}()
}

// RegisterShutdownHook adds a callback run by Shutdown before tracked resources
// are released.
func (t *Tracker) RegisterShutdownHook(fn func(context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Shutdown runs shutdown hooks in registration order, then releases every
// tracked resource. Errors are logged and returned joined.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	hooks := make([]func(context.Context) error, len(t.hooks))
	copy(hooks, t.hooks)
	t.hooks = nil
	t.mu.Unlock()

	var errs []error
	for i, hook := range hooks {
		if err := safeHook(ctx, hook); err != nil {
			t.logger.Error("shutdown hook failed", "hook", i, "error", err)
			errs = append(errs, err)
		}
	}
	if err := t.ReleaseAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReleaseFilesSync removes tracked file paths without invoking release
// funcs. This is the only work safe to do when the process is being killed.
func (t *Tracker) ReleaseFilesSync() int {
	t.mu.Lock()
	var files []*Resource
	for id, r := range t.resources {
		if r.Kind == KindFile && r.Path != "" {
			files = append(files, r)
			delete(t.resources, id)
		}
	}
	t.mu.Unlock()

	for _, r := range files {
		_ = removeFile(r.Path)
	}
	return len(files)
}

// Len returns the number of live resources.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resources)
}

// Has reports whether id is still registered.
func (t *Tracker) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.resources[id]
	return ok
}

// Stats returns a snapshot of tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Total:    len(t.resources),
		ByKind:   make(map[Kind]int),
		Released: t.released,
		Failed:   t.failed,
	}
	for _, r := range t.resources {
		s.ByKind[r.Kind]++
	}
	return s
}

// take removes and returns the entry for id. The entry is removed before the
// release func runs so a failing release cannot be retried or leak.
func (t *Tracker) take(id string) *Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.resources[id]
	if !ok {
		return nil
	}
	delete(t.resources, id)
	return r
}

func (t *Tracker) releaseWhere(match func(*Resource) bool) error {
	t.mu.Lock()
	var selected []*Resource
	for id, r := range t.resources {
		if match(r) {
			selected = append(selected, r)
			delete(t.resources, id)
		}
	}
	t.mu.Unlock()

	// Oldest first keeps release order stable.
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].CreatedAt.Before(selected[j].CreatedAt)
	})

	var errs []error
	for _, r := range selected {
		if err := t.run(r); err != nil {
			errs = append(errs, fmt.Errorf("release %s %s: %w", r.Kind, r.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) run(r *Resource) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("release panicked: %v", p)
		}
		t.mu.Lock()
		if err != nil {
			t.failed++
		} else {
			t.released++
		}
		t.mu.Unlock()
		if err != nil {
			t.logger.Error("failed to release resource", "id", r.ID, "kind", r.Kind, "path", r.Path, "error", err)
		}
	}()
	if r.release == nil {
		return nil
	}
	return r.release()
}

func safeHook(ctx context.Context, hook func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("shutdown hook panicked: %v", p)
		}
	}()
	return hook(ctx)
}

func removeFile(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
