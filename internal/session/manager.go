package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelcut/reelcut-agent/internal/store"
)

const DefaultProjectName = "Untitled project"

// Manager keeps one live session per open project.
type Manager struct {
	ctx  context.Context
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a manager. ctx bounds background work such as playback
// drivers and outlives individual requests.
func NewManager(ctx context.Context, deps Deps) *Manager {
	return &Manager{
		ctx:      ctx,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new project. An empty id gets a fresh uuid; an id that
// already exists is refused.
func (m *Manager) Create(ctx context.Context, id, name string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultProjectName
	}

	existing, err := m.deps.Store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: project %s already exists", ErrInvalidInput, id)
	}

	now := time.Now()
	if m.deps.Now != nil {
		now = m.deps.Now()
	}
	p := store.Project{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := m.deps.Store.PutProject(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s := newSession(m.ctx, p, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.deps.Logger.Info("project created", "project_id", id, "name", name)
	return s, nil
}

// Open returns the live session for id, loading it from the store on first
// use.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	p, err := m.deps.Store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	doc := p.Document
	p.Document = store.Document{}
	s := newSession(m.ctx, *p, m.deps)
	if err := s.Restore(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to restore project %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = s
	m.deps.Logger.Info("project opened", "project_id", id, "clips", len(doc.Clips))
	return s, nil
}

func (m *Manager) List(ctx context.Context) ([]*store.ProjectSummary, error) {
	return m.deps.Store.ListProjects(ctx)
}

// Close flushes and forgets one session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// CloseAll flushes every open session, used at shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// OpenCount is the number of live sessions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
