package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"htsfinder/internal/domain"
)

// Session carries the state of one narrowing conversation: the initial
// query, the filters accumulated from answers, the surviving candidates
// and the questions already asked. Keeping it explicit keeps the
// narrowing logic testable outside the UI.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Query      string
	Filter     domain.Filter
	Candidates []domain.HtsRow
	Asked      []domain.Question
	Final      *domain.HtsRow
}

// Answer applies a chosen option to the session's candidate set and
// records the question. Settles Final when one candidate remains.
func (s *Session) Answer(q domain.Question, opt domain.Option) {
	s.Candidates = ApplyAnswer(s.Candidates, q, opt)
	s.Asked = append(s.Asked, q)
	if q.SpecLevel < 0 && !opt.Negate && len(opt.FilterValues) == 1 {
		s.Filter.Prefix4 = opt.FilterValues[0]
	}
	if len(s.Candidates) == 1 {
		row := s.Candidates[0]
		s.Final = &row
	}
}

// NextQuestion returns the next clarifying question, or nil when the
// candidate set cannot be split further.
func (s *Session) NextQuestion() *domain.Question {
	return GenerateQuestion(s.Candidates)
}

// SessionStore is an in-memory session registry. Sessions are transient
// and scoped to one process.
type SessionStore struct {
	mu sync.Mutex
	m  map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{m: make(map[string]*Session)}
}

// Create registers a session over the given candidates.
func (st *SessionStore) Create(query string, candidates []domain.HtsRow) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		Query:      query,
		Candidates: candidates,
	}
	st.m[s.ID] = s
	return s
}

func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.m[id]
	return s, ok
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.m, id)
}
