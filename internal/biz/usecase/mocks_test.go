package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// Mock implementations

type mockSessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*domain.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[int64]*domain.Session)}
}

func (m *mockSessionRepo) GetActive(ctx context.Context, userID int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active && (found == nil || s.ID > found.ID) {
			found = s
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (m *mockSessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	session.ID = m.nextID
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Save(ctx context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockSessionRepo) List(ctx context.Context, limit int) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Session
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result, nil
}

type mockMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []*domain.Message
}

func (m *mockMessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockMessageRepo) Recent(ctx context.Context, sessionID int64, limit int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			result = append(result, msg)
		}
	}
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *mockMessageRepo) Count(ctx context.Context, sessionID int64) (int, error) {
	msgs, _ := m.Recent(ctx, sessionID, 1<<30)
	return len(msgs), nil
}

type mockActionRepo struct {
	mu      sync.Mutex
	actions map[string]*domain.PendingAction
}

func newMockActionRepo() *mockActionRepo {
	return &mockActionRepo{actions: make(map[string]*domain.PendingAction)}
}

func (m *mockActionRepo) Save(ctx context.Context, a *domain.PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.actions[a.ID] = &cp
	return nil
}

func (m *mockActionRepo) Transition(ctx context.Context, a *domain.PendingAction, from domain.ActionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.actions[a.ID]
	if !ok {
		return domain.ErrActionNotFound
	}
	if stored.State != from {
		return fmt.Errorf("%w: %s is %s", domain.ErrActionNotPending, a.ID, stored.State)
	}
	cp := *a
	m.actions[a.ID] = &cp
	return nil
}

func (m *mockActionRepo) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockActionRepo) ListBySession(ctx context.Context, sessionID int64, state domain.ActionState) ([]*domain.PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.PendingAction
	for _, a := range m.actions {
		if a.SessionID == sessionID && (state == "" || a.State == state) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockActionRepo) ListRecent(ctx context.Context, limit int) ([]*domain.PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.PendingAction
	for _, a := range m.actions {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

type mockPatternRepo struct {
	mu       sync.Mutex
	nextID   int64
	patterns []*domain.UserPattern
}

func (m *mockPatternRepo) Track(ctx context.Context, userID int64, key, value string, at time.Time) (*domain.UserPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patterns {
		if p.UserID == userID && p.Key == key && p.Value == value {
			p.Count++
			p.LastSeen = at
			cp := *p
			return &cp, nil
		}
	}
	m.nextID++
	p := &domain.UserPattern{ID: m.nextID, UserID: userID, Key: key, Value: value, Count: 1, LastSeen: at}
	m.patterns = append(m.patterns, p)
	cp := *p
	return &cp, nil
}

func (m *mockPatternRepo) Frequent(ctx context.Context, userID int64, key string, minCount int) ([]*domain.UserPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.UserPattern
	for _, p := range m.patterns {
		if p.UserID == userID && p.Key == key && p.Count >= minCount {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockPatternRepo) SetDefault(ctx context.Context, userID, patternID int64) (*domain.UserPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patterns {
		if p.ID == patternID && p.UserID == userID {
			p.IsDefault = true
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPatternNotFound
}

func (m *mockPatternRepo) Defaults(ctx context.Context, userID int64) ([]*domain.UserPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.UserPattern
	for _, p := range m.patterns {
		if p.UserID == userID && p.IsDefault {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

type mockLLMRepo struct {
	mu        sync.Mutex
	reply     string
	deferred  []repo.DeferredCall
	err       error
	toolErr   error
	requests  []*repo.CompletionRequest
	toolCalls []string
}

func (m *mockLLMRepo) Complete(ctx context.Context, req *repo.CompletionRequest) (*repo.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &repo.Completion{Text: m.reply, Rounds: 1, Deferred: m.deferred}, nil
}

func (m *mockLLMRepo) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = append(m.toolCalls, tool)
	if m.toolErr != nil {
		return "", m.toolErr
	}
	return "ok", nil
}

func (m *mockLLMRepo) Model() string { return "test-model" }

func (m *mockLLMRepo) Integrations() []string { return []string{"calendar"} }

func (m *mockLLMRepo) lastRequest() *repo.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
