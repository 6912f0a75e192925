// Copyright 2025 Joseph Cumines
//
// Package session owns the state shared by every tool call for the lifetime
// of the server: the automation provider, the element handle cache, and the
// table of tracked processes.
//
// Processes are tracked either because the session launched them or because
// a client attached to them. Only launched processes are owned: Close
// terminates those and leaves attached processes running.

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joeycumines/uiautomation-mcp/internal/handle"
	"github.com/joeycumines/uiautomation-mcp/internal/provider"
)

// ErrClosed is returned once the session has begun closing.
var ErrClosed = errors.New("session is closed")

// Factory constructs the automation provider on first use.
type Factory func(ctx context.Context) (provider.Provider, error)

// TrackedProcess is a process known to the session.
type TrackedProcess struct {
	TrackedAt time.Time `json:"trackedAt"`
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	// Launched is true when the session started the process and is
	// therefore responsible for terminating it.
	Launched bool `json:"launched"`
}

// Stats is a point-in-time summary of session state.
type Stats struct {
	Elements          int    `json:"elements"`
	ElementsIssued    uint64 `json:"elementsIssued"`
	Processes         int    `json:"processes"`
	LaunchedProcesses int    `json:"launchedProcesses"`
	ProviderAcquired  bool   `json:"providerAcquired"`
}

// Session is safe for concurrent use.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Session struct {
	id        string
	factory   Factory
	log       *log.Logger
	elements  *handle.Cache[*provider.Element]
	prov      provider.Provider
	processes map[int]*TrackedProcess
	launches  sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	// released is set once Close has taken its final process snapshot.
	released bool
}

// New creates a session. The provider is not constructed until Provider is
// first called.
func New(factory Factory, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		factory:   factory,
		log:       logger.With("session", id),
		elements:  handle.NewCache[*provider.Element](handle.ElementPrefix),
		processes: make(map[int]*TrackedProcess),
	}
}

// ID returns the unique identifier of this session.
func (s *Session) ID() string { return s.id }

// Provider returns the shared provider, constructing it on first use. A
// failed construction is not cached; the next call tries again.
func (s *Session) Provider(ctx context.Context) (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.prov != nil {
		return s.prov, nil
	}

	p, err := s.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create automation provider: %w", err)
	}
	s.prov = provider.Serialize(p)
	s.log.Debug("automation provider acquired")
	return s.prov, nil
}

// PutElement caches el and returns its new handle id.
func (s *Session) PutElement(el *provider.Element) string {
	return s.elements.Put(el)
}

// Element resolves a handle id issued by PutElement.
func (s *Session) Element(id string) (*provider.Element, bool) {
	return s.elements.Get(id)
}

// ForgetElement drops a handle, e.g. once its element has gone stale.
func (s *Session) ForgetElement(id string) {
	s.elements.Remove(id)
}

// BeginLaunch registers a launch in flight. Close waits for every
// registered launch to call done before it terminates launched processes,
// so a process started during shutdown is still tracked and terminated.
func (s *Session) BeginLaunch() (done func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.launches.Add(1)
	return sync.OnceFunc(s.launches.Done), nil
}

// TrackProcess records p. Re-tracking a process the session launched keeps
// it marked as launched. Once Close has snapshotted the process table it
// fails with ErrClosed, and the caller remains responsible for p.
func (s *Session) TrackProcess(p *provider.Process, launched bool) (TrackedProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return TrackedProcess{}, ErrClosed
	}
	tp, ok := s.processes[p.PID]
	if !ok {
		tp = &TrackedProcess{PID: p.PID, TrackedAt: time.Now()}
		s.processes[p.PID] = tp
	}
	if p.Name != "" {
		tp.Name = p.Name
	}
	tp.Launched = tp.Launched || launched
	return *tp, nil
}

// Process returns the tracked process with the given pid.
func (s *Session) Process(pid int) (TrackedProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp, ok := s.processes[pid]
	if !ok {
		return TrackedProcess{}, false
	}
	return *tp, true
}

// UntrackProcess forgets pid.
func (s *Session) UntrackProcess(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, pid)
}

// Processes returns all tracked processes ordered by pid.
func (s *Session) Processes() []TrackedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processesLocked()
}

func (s *Session) processesLocked() []TrackedProcess {
	out := make([]TrackedProcess, 0, len(s.processes))
	for _, tp := range s.processes {
		out = append(out, *tp)
	}
	slices.SortFunc(out, func(a, b TrackedProcess) int { return a.PID - b.PID })
	return out
}

// Stats summarises the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Elements:         s.elements.Len(),
		ElementsIssued:   s.elements.Issued(),
		Processes:        len(s.processes),
		ProviderAcquired: s.prov != nil,
	}

	for _, tp := range s.processes {
		if tp.Launched {
			st.LaunchedProcesses++
		}
	}
	return st
}

// Close force-terminates every process the session launched, then releases
// the provider. Processes that already exited are not an error. Launches in
// flight are waited for until ctx is done. Close is idempotent; once it
// starts, Provider and BeginLaunch fail with ErrClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.waitLaunches(ctx)

	s.mu.Lock()
	s.released = true
	prov := s.prov
	s.prov = nil
	tracked := s.processesLocked()
	s.processes = make(map[int]*TrackedProcess)
	s.mu.Unlock()

	if prov == nil {
		return nil
	}

	var errs []error
	for _, tp := range tracked {
		if !tp.Launched {
			s.log.Debug("leaving attached process running", "pid", tp.PID, "name", tp.Name)
			continue
		}
		err := prov.CloseProcess(ctx, tp.PID, true)
		switch {
		case err == nil:
			s.log.Info("terminated launched process", "pid", tp.PID, "name", tp.Name)
		case errors.Is(err, provider.ErrNotFound):
			s.log.Debug("launched process already exited", "pid", tp.PID, "name", tp.Name)
		default:
			s.log.Warn("failed to terminate launched process", "pid", tp.PID, "name", tp.Name, "err", err)
			errs = append(errs, fmt.Errorf("terminate pid %d: %w", tp.PID, err))
		}
	}

	if err := prov.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release provider: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Session) waitLaunches(ctx context.Context) {
	finished := make(chan struct{})
	go func() {
		s.launches.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		s.log.Warn("closing with launches still in flight", "err", ctx.Err())
	}
}
