package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vairify/vaicheck-server-go/internal/model"
)

// MemoryStore keeps sessions, encounters and identities in process. It honours
// the same version and exactly-once rules as the postgres repositories and is
// used for local runs and tests.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*model.Session
	encounters map[string]*model.Encounter
	identities map[string]*model.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*model.Session),
		encounters: make(map[string]*model.Encounter),
		identities: make(map[string]*model.Identity),
	}
}

// AddIdentity registers an enrolment.
func (m *MemoryStore) AddIdentity(id model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.UserID] = &id
}

func (m *MemoryStore) Sessions() SessionRepository { return (*memSessions)(m) }

func (m *MemoryStore) Encounters() EncounterRepository { return (*memEncounters)(m) }

func (m *MemoryStore) Identities() IdentityRepository { return (*memIdentities)(m) }

// EncounterCount is the number of encounters recorded for sessionID.
func (m *MemoryStore) EncounterCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.encounters {
		if e.SessionID == sessionID {
			n++
		}
	}
	return n
}

type memSessions MemoryStore

func (r *memSessions) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (r *memSessions) FindActiveByCode(_ context.Context, code string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.activeByCode(code); s != nil {
		return s.Clone(), nil
	}
	return nil, nil
}

func (r *memSessions) activeByCode(code string) *model.Session {
	for _, s := range r.sessions {
		if s.Code == code && !s.Status.IsTerminal() {
			return s
		}
	}
	return nil
}

func (r *memSessions) Create(_ context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeByCode(params.Code) != nil {
		return nil, ErrDuplicateCode
	}
	now := time.Now()
	s := &model.Session{
		ID:                  params.ID,
		Code:                params.Code,
		InitiatorID:         params.InitiatorID,
		Status:              model.SessionStatusInitiated,
		InitiatorDecision:   model.DecisionPending,
		CounterpartDecision: model.DecisionPending,
		InitiatorContract:   model.DecisionPending,
		CounterpartContract: model.DecisionPending,
		VerificationMethod:  model.VerificationAutomated,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	r.sessions[s.ID] = s
	return s.Clone(), nil
}

func (r *memSessions) Save(_ context.Context, s *model.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(s, false), nil
}

func (r *memSessions) saveLocked(s *model.Session, requireNoEncounter bool) bool {
	stored, ok := r.sessions[s.ID]
	if !ok || stored.Version != s.Version {
		return false
	}
	if requireNoEncounter && stored.EncounterID != nil {
		return false
	}
	s.Version++
	s.UpdatedAt = time.Now()
	r.sessions[s.ID] = s.Clone()
	return true
}

func (r *memSessions) Complete(_ context.Context, s *model.Session, enc *model.Encounter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.saveLocked(s, true) {
		return false, nil
	}
	e := *enc
	r.encounters[e.ID] = &e
	return true, nil
}

func (r *memSessions) ListPendingReview(_ context.Context) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusManualReviewPending {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *memSessions) DeleteUnclaimed(_ context.Context, now, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		horizon, cutoff := s.CreatedAt, createdBefore
		if s.QRExpiresAt != nil {
			horizon, cutoff = *s.QRExpiresAt, now
		}
		if s.CounterpartID != nil || !horizon.Before(cutoff) {
			continue
		}
		if s.Status == model.SessionStatusInitiated || s.Status == model.SessionStatusQRShown {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type memEncounters MemoryStore

func (r *memEncounters) FindByID(_ context.Context, id string) (*model.Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.encounters[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (r *memEncounters) FindBySessionID(_ context.Context, sessionID string) (*model.Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.encounters {
		if e.SessionID == sessionID {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

type memIdentities MemoryStore

func (r *memIdentities) FindByUserID(_ context.Context, userID string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identities[userID]; ok {
		c := *id
		return &c, nil
	}
	return nil, nil
}
