package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
	"github.com/vairify/vaicheck-server-go/internal/oracle"
	"github.com/vairify/vaicheck-server-go/internal/repository"
	"github.com/vairify/vaicheck-server-go/internal/util"
)

const (
	defaultQRTTL       = 30 * time.Minute
	defaultMaxAttempts = 3
)

// Disposition tells a participant what to do next.
type Disposition string

const (
	DispositionAct  Disposition = "act"
	DispositionWait Disposition = "wait"
	DispositionDone Disposition = "done"
)

type Options struct {
	QRTTL       time.Duration
	MaxAttempts int

	// MeterProvider receives session counters. Nil uses the otel global.
	MeterProvider metric.MeterProvider
}

type SessionService struct {
	sessions   repository.SessionRepository
	encounters repository.EncounterRepository
	identities repository.IdentityRepository
	oracle     oracle.Comparer
	qr         *QRCodec
	metrics    *sessionMetrics
	qrTTL      time.Duration
	maxAttempt int
	now        func() time.Time
}

func NewSessionService(
	sessions repository.SessionRepository,
	encounters repository.EncounterRepository,
	identities repository.IdentityRepository,
	comparer oracle.Comparer,
	qr *QRCodec,
	opts Options,
) *SessionService {
	if opts.QRTTL <= 0 {
		opts.QRTTL = defaultQRTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &SessionService{
		sessions:   sessions,
		encounters: encounters,
		identities: identities,
		oracle:     comparer,
		qr:         qr,
		metrics:    newSessionMetrics(opts.MeterProvider),
		qrTTL:      opts.QRTTL,
		maxAttempt: opts.MaxAttempts,
		now:        time.Now,
	}
}

// StatusView is the polling representation of a session as seen by one participant.
type StatusView struct {
	SessionID                string                   `json:"sessionId"`
	Code                     string                   `json:"code"`
	Status                   model.SessionStatus      `json:"status"`
	Role                     model.Role               `json:"role,omitempty"`
	Disposition              Disposition              `json:"disposition"`
	InitiatorDecision        model.Decision           `json:"initiatorDecision"`
	CounterpartDecision      model.Decision           `json:"counterpartDecision"`
	InitiatorContract        model.Decision           `json:"initiatorContract"`
	CounterpartContract      model.Decision           `json:"counterpartContract"`
	InitiatorVerified        bool                     `json:"initiatorVerified"`
	InitiatorFinalVerified   bool                     `json:"initiatorFinalVerified"`
	CounterpartFinalVerified bool                     `json:"counterpartFinalVerified"`
	Joined                   bool                     `json:"joined"`
	AttemptsRemaining        *int                     `json:"attemptsRemaining,omitempty"`
	QRPayload                *string                  `json:"qrPayload,omitempty"`
	QRExpiresAt              *time.Time               `json:"qrExpiresAt,omitempty"`
	ReviewCheckpoint         *model.Checkpoint        `json:"reviewCheckpoint,omitempty"`
	ReviewReason             *model.FailureReason     `json:"reviewReason,omitempty"`
	ManualReviewOutcome      *model.ReviewOutcome     `json:"manualReviewOutcome,omitempty"`
	VerificationMethod       model.VerificationMethod `json:"verificationMethod"`
	EncounterID              *string                  `json:"encounterId,omitempty"`
	Version                  int64                    `json:"version"`
	UpdatedAt                time.Time                `json:"updatedAt"`
}

func (s *SessionService) view(sess *model.Session, role model.Role) *StatusView {
	v := &StatusView{
		SessionID:                sess.ID,
		Code:                     sess.Code,
		Status:                   sess.Status,
		Role:                     role,
		Disposition:              dispositionFor(sess, role),
		InitiatorDecision:        sess.InitiatorDecision,
		CounterpartDecision:      sess.CounterpartDecision,
		InitiatorContract:        sess.InitiatorContract,
		CounterpartContract:      sess.CounterpartContract,
		InitiatorVerified:        sess.InitiatorVerified,
		InitiatorFinalVerified:   sess.InitiatorFinalVerified,
		CounterpartFinalVerified: sess.CounterpartFinalVerified,
		Joined:                   sess.CounterpartID != nil,
		ReviewCheckpoint:         sess.ReviewCheckpoint,
		ReviewReason:             sess.ReviewReason,
		ManualReviewOutcome:      sess.ManualReviewOutcome,
		VerificationMethod:       sess.VerificationMethod,
		EncounterID:              sess.EncounterID,
		Version:                  sess.Version,
		UpdatedAt:                sess.UpdatedAt,
	}
	if role == model.RoleInitiator && sess.Status == model.SessionStatusQRShown {
		v.QRPayload = sess.QRPayload
		v.QRExpiresAt = sess.QRExpiresAt
	}
	if role != "" && atGate(sess, role) {
		remaining := s.maxAttempt - sess.Attempts(role)
		v.AttemptsRemaining = &remaining
	}
	return v
}

// atGate reports whether role is the one expected to submit a capture next.
func atGate(sess *model.Session, role model.Role) bool {
	switch sess.Status {
	case model.SessionStatusInitiated:
		return role == model.RoleInitiator
	case model.SessionStatusFinalVerification:
		return !sess.FinalVerified(role)
	}
	return false
}

func dispositionFor(sess *model.Session, role model.Role) Disposition {
	if sess.Status.IsTerminal() {
		return DispositionDone
	}
	if role == "" {
		return DispositionWait
	}
	switch sess.Status {
	case model.SessionStatusInitiated:
		if role == model.RoleInitiator {
			return DispositionAct
		}
	case model.SessionStatusDecisionsPending:
		if sess.DecisionOf(role) == model.DecisionPending {
			return DispositionAct
		}
	case model.SessionStatusContractReview:
		if sess.ContractOf(role) == model.DecisionPending {
			return DispositionAct
		}
	case model.SessionStatusFinalVerification:
		if !sess.FinalVerified(role) {
			return DispositionAct
		}
	}
	return DispositionWait
}

// CreateSession opens a session for an enrolled initiator.
func (s *SessionService) CreateSession(ctx context.Context, initiatorID string) (*StatusView, error) {
	if initiatorID == "" {
		return nil, apperrors.MissingRequired("initiatorId")
	}
	if _, err := s.requireIdentity(ctx, initiatorID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, apperrors.Internal("failed to generate session code")
		}
		existing, err := s.sessions.FindActiveByCode(ctx, code)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if existing != nil {
			continue
		}

		sess, err := s.sessions.Create(ctx, model.CreateSessionParams{
			ID:          uuid.NewString(),
			Code:        code,
			InitiatorID: initiatorID,
		})
		if errors.Is(err, repository.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}

		log.Info().
			Str("sessionId", sess.ID).
			Str("code", util.MaskCode(code)).
			Msg("session created")
		audit.Log(ctx, audit.Event{Type: audit.EventSessionCreate, UserID: initiatorID, SessionID: sess.ID})

		return s.view(sess, model.RoleInitiator), nil
	}

	log.Error().Int("attempts", maxCodeAttempts).Msg("session code space exhausted")
	return nil, apperrors.Internal("could not allocate a session code")
}

// GetSessionStatus returns the latest committed state. It never writes.
func (s *SessionService) GetSessionStatus(ctx context.Context, sessionID, callerID string) (*StatusView, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	role, ok := sess.RoleOf(callerID)
	if !ok {
		return nil, apperrors.Forbidden("Not a participant in this session")
	}
	return s.view(sess, role), nil
}

// GetEncounter returns an encounter to one of its two participants.
func (s *SessionService) GetEncounter(ctx context.Context, encounterID, callerID string) (*model.Encounter, error) {
	enc, err := s.encounters.FindByID(ctx, encounterID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if enc == nil {
		return nil, apperrors.NotFound("Encounter")
	}
	if callerID != enc.InitiatorID && callerID != enc.CounterpartID {
		return nil, apperrors.Forbidden("Not a participant in this encounter")
	}
	return enc, nil
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	if !util.IsValidUUID(sessionID) {
		return nil, apperrors.NotFound("Session")
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Session")
	}
	return sess, nil
}

func (s *SessionService) requireIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	id, err := s.identities.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if id == nil {
		return nil, apperrors.Forbidden("Identity verification record not found")
	}
	return id, nil
}

// resolveRole checks that callerID holds the requested role. An empty roleHint
// means "whatever role the caller holds".
func resolveRole(sess *model.Session, callerID, roleHint string) (model.Role, error) {
	if roleHint == "" {
		role, ok := sess.RoleOf(callerID)
		if !ok {
			return "", apperrors.Forbidden("Not a participant in this session")
		}
		return role, nil
	}
	role, ok := model.ParseRole(roleHint)
	if !ok {
		return "", apperrors.InvalidInput("role", "must be initiator or counterpart")
	}
	if sess.ParticipantID(role) != callerID {
		return "", apperrors.Forbidden(fmt.Sprintf("Caller is not the %s of this session", role))
	}
	return role, nil
}

type writeKind int

const (
	skipWrite writeKind = iota
	saveWrite
	completeWrite
)

// mutateFunc computes the next state in place. It runs again on a fresh copy
// if the first write loses a race, so it must not call out to the oracle.
type mutateFunc func(sess *model.Session) (writeKind, error)

// mutate reads the session, applies fn and writes the result conditioned on
// the version it read. One lost race is retried; a second is a conflict.
func (s *SessionService) mutate(ctx context.Context, sessionID string, fn mutateFunc) (*model.Session, error) {
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		kind, err := fn(next)
		if err != nil {
			return nil, err
		}
		if kind == skipWrite {
			return current, nil
		}
		if err := next.CheckInvariants(); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("refusing to persist inconsistent session")
			return nil, apperrors.Internal("session update rejected")
		}

		var won bool
		if kind == completeWrite {
			won, err = s.sessions.Complete(ctx, next, encounterFor(next, s.now()))
		} else {
			won, err = s.sessions.Save(ctx, next)
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if won {
			s.metrics.transition(ctx, string(current.Status), string(next.Status))
			if kind == completeWrite {
				s.logEncounter(ctx, next)
			}
			return next, nil
		}

		s.metrics.lostRace(ctx)
		log.Debug().Str("sessionId", sessionID).Int("attempt", attempt+1).Msg("session write lost race")
	}
	return nil, apperrors.Conflict("Session was modified concurrently, please retry")
}
