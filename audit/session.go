package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrSaveFailed marks a mutation that was applied in memory but could
// not be persisted. There is no rollback: the next successful save
// flushes the latest in-memory state.
var ErrSaveFailed = errors.New("projects not saved; changes kept in memory")

// Session is the explicit application state: the loaded project set
// plus its injected store. One writer, synchronous mutations, flushed
// to the store after every change.
type Session struct {
	mu       sync.RWMutex
	store    ProjectStore
	projects map[string]*Project
	order    []string
}

// NewSession creates an empty session backed by the given store.
func NewSession(store ProjectStore) *Session {
	return &Session{
		store:    store,
		projects: make(map[string]*Project),
	}
}

// Load replaces the in-memory project set from the store. Listing
// order of loaded projects is alphabetical; projects created in this
// session keep creation order after that.
func (s *Session) Load(ctx context.Context) error {
	projects, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	order := make([]string, 0, len(projects))
	for name := range projects {
		order = append(order, name)
	}
	sort.Strings(order)

	s.mu.Lock()
	s.projects = projects
	s.order = order
	s.mu.Unlock()
	return nil
}

// ProjectNames returns project names in listing order.
func (s *Session) ProjectNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// CreateProject adds a new project and flushes. The name is the
// storage key and must be unique.
func (s *Session) CreateProject(ctx context.Context, name string, general GeneralInfo) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[name]; ok {
		return nil, fmt.Errorf("project %q: %w", name, ErrDuplicateProject)
	}

	pr := NewProject(name, general)
	s.projects[name] = pr
	s.order = append(s.order, name)

	if err := s.store.Save(ctx, s.projects); err != nil {
		return pr, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return pr, nil
}

// DeleteProject removes a project and flushes.
func (s *Session) DeleteProject(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[name]; !ok {
		return fmt.Errorf("project %q: %w", name, ErrUnknownProject)
	}
	delete(s.projects, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if err := s.store.Save(ctx, s.projects); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// View runs fn with read access to the named project.
func (s *Session) View(name string, fn func(*Project) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pr, ok := s.projects[name]
	if !ok {
		return fmt.Errorf("project %q: %w", name, ErrUnknownProject)
	}
	return fn(pr)
}

// ViewAll runs fn with read access to all projects in listing order.
func (s *Session) ViewAll(fn func([]*Project) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Project, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.projects[name])
	}
	return fn(out)
}

// Update runs fn with write access to the named project and flushes
// afterwards. When fn succeeds but the flush fails, the mutation stays
// applied and the error wraps ErrSaveFailed.
func (s *Session) Update(ctx context.Context, name string, fn func(*Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.projects[name]
	if !ok {
		return fmt.Errorf("project %q: %w", name, ErrUnknownProject)
	}

	if err := fn(pr); err != nil {
		return err
	}

	if err := s.store.Save(ctx, s.projects); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}
