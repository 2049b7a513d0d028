// Package memory provides in-process repositories for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/rules"
)

type stored[T any] struct {
	seq  int
	item T
}

// RuleRepo implements rules.Repository in memory.
type RuleRepo struct {
	mu   sync.RWMutex
	seq  int
	now  func() time.Time
	qual map[string]stored[domain.QualificationRule]
	step map[string]stored[domain.StepCondition]
	esc  map[string]stored[domain.EscalationRule]
}

var _ rules.Repository = (*RuleRepo)(nil)

// NewRuleRepo creates an empty repository.
func NewRuleRepo() *RuleRepo {
	return &RuleRepo{
		now:  time.Now,
		qual: make(map[string]stored[domain.QualificationRule]),
		step: make(map[string]stored[domain.StepCondition]),
		esc:  make(map[string]stored[domain.EscalationRule]),
	}
}

// SetClock overrides the timestamp source.
func (m *RuleRepo) SetClock(now func() time.Time) { m.now = now }

func (m *RuleRepo) next() (string, int, time.Time) {
	m.seq++
	return uuid.New().String(), m.seq, m.now().UTC()
}

func (m *RuleRepo) ListQualification(_ context.Context, campaignID string) ([]domain.QualificationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []stored[domain.QualificationRule]
	for _, s := range m.qual {
		if s.item.CampaignID == campaignID {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].item, rows[j].item
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]domain.QualificationRule, len(rows))
	for i, s := range rows {
		out[i] = s.item
	}
	return out, nil
}

func (m *RuleRepo) GetQualification(_ context.Context, id string) (*domain.QualificationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.qual[id]
	if !ok {
		return nil, rules.ErrNotFound
	}
	r := s.item
	return &r, nil
}

func (m *RuleRepo) InsertQualification(_ context.Context, r *domain.QualificationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, seq, now := m.next()
	r.ID, r.CreatedAt, r.UpdatedAt = id, now, now
	m.qual[id] = stored[domain.QualificationRule]{seq: seq, item: *r}
	return nil
}

func (m *RuleRepo) UpdateQualification(_ context.Context, r *domain.QualificationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.qual[r.ID]
	if !ok {
		return rules.ErrNotFound
	}
	r.CreatedAt = s.item.CreatedAt
	r.UpdatedAt = m.now().UTC()
	s.item = *r
	m.qual[r.ID] = s
	return nil
}

func (m *RuleRepo) DeleteQualification(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.qual[id]; !ok {
		return rules.ErrNotFound
	}
	delete(m.qual, id)
	return nil
}

func (m *RuleRepo) ListStepConditions(_ context.Context, stepID string) ([]domain.StepCondition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []stored[domain.StepCondition]
	for _, s := range m.step {
		if s.item.StepID == stepID {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].item.OrderIndex != rows[j].item.OrderIndex {
			return rows[i].item.OrderIndex < rows[j].item.OrderIndex
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]domain.StepCondition, len(rows))
	for i, s := range rows {
		out[i] = s.item
	}
	return out, nil
}

func (m *RuleRepo) GetStepCondition(_ context.Context, id string) (*domain.StepCondition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.step[id]
	if !ok {
		return nil, rules.ErrNotFound
	}
	c := s.item
	return &c, nil
}

func (m *RuleRepo) InsertStepCondition(_ context.Context, c *domain.StepCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, seq, now := m.next()
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
	m.step[id] = stored[domain.StepCondition]{seq: seq, item: *c}
	return nil
}

func (m *RuleRepo) UpdateStepCondition(_ context.Context, c *domain.StepCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.step[c.ID]
	if !ok {
		return rules.ErrNotFound
	}
	c.CreatedAt = s.item.CreatedAt
	c.UpdatedAt = m.now().UTC()
	s.item = *c
	m.step[c.ID] = s
	return nil
}

func (m *RuleRepo) DeleteStepCondition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.step[id]; !ok {
		return rules.ErrNotFound
	}
	delete(m.step, id)
	return nil
}

func (m *RuleRepo) ReplaceStepConditions(_ context.Context, stepID string, conds []domain.StepCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := make(map[string]bool, len(conds))
	for _, c := range conds {
		if c.ID == "" {
			continue
		}
		s, ok := m.step[c.ID]
		if !ok {
			return rules.ErrNotFound
		}
		if s.item.StepID != stepID {
			return rules.ErrOwnerChanged
		}
		keep[c.ID] = true
	}
	for id, s := range m.step {
		if s.item.StepID == stepID && !keep[id] {
			delete(m.step, id)
		}
	}
	for i := range conds {
		c := &conds[i]
		c.StepID = stepID
		if c.ID == "" {
			id, seq, now := m.next()
			c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
			m.step[id] = stored[domain.StepCondition]{seq: seq, item: *c}
			continue
		}
		s := m.step[c.ID]
		c.CreatedAt = s.item.CreatedAt
		c.UpdatedAt = m.now().UTC()
		s.item = *c
		m.step[c.ID] = s
	}
	return nil
}

func (m *RuleRepo) ListEscalation(_ context.Context, clientID string) ([]domain.EscalationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []stored[domain.EscalationRule]
	for _, s := range m.esc {
		if s.item.ClientID == clientID {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].item.OrderIndex != rows[j].item.OrderIndex {
			return rows[i].item.OrderIndex < rows[j].item.OrderIndex
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]domain.EscalationRule, len(rows))
	for i, s := range rows {
		out[i] = s.item
	}
	return out, nil
}

func (m *RuleRepo) GetEscalation(_ context.Context, id string) (*domain.EscalationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.esc[id]
	if !ok {
		return nil, rules.ErrNotFound
	}
	e := s.item
	return &e, nil
}

func (m *RuleRepo) InsertEscalation(_ context.Context, e *domain.EscalationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, seq, now := m.next()
	e.ID, e.CreatedAt, e.UpdatedAt = id, now, now
	m.esc[id] = stored[domain.EscalationRule]{seq: seq, item: *e}
	return nil
}

func (m *RuleRepo) UpdateEscalation(_ context.Context, e *domain.EscalationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.esc[e.ID]
	if !ok {
		return rules.ErrNotFound
	}
	e.CreatedAt = s.item.CreatedAt
	e.UpdatedAt = m.now().UTC()
	s.item = *e
	m.esc[e.ID] = s
	return nil
}

func (m *RuleRepo) DeleteEscalation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.esc[id]; !ok {
		return rules.ErrNotFound
	}
	delete(m.esc, id)
	return nil
}
