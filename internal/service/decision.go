package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// mutualGate describes one of the two accept/decline rounds.
type mutualGate struct {
	name   string
	status model.SessionStatus
	next   model.SessionStatus
	get    func(*model.Session, model.Role) model.Decision
	set    func(*model.Session, model.Role, model.Decision)
	event  audit.EventType
}

var (
	decisionGate = mutualGate{
		name:   "decision",
		status: model.SessionStatusDecisionsPending,
		next:   model.SessionStatusContractReview,
		get:    (*model.Session).DecisionOf,
		set:    (*model.Session).SetDecision,
		event:  audit.EventDecisionRecorded,
	}
	contractGate = mutualGate{
		name:   "contract",
		status: model.SessionStatusContractReview,
		next:   model.SessionStatusFinalVerification,
		get:    (*model.Session).ContractOf,
		set:    (*model.Session).SetContract,
		event:  audit.EventContractRecorded,
	}
)

// RecordDecision stores a participant's consent verdict after profile disclosure.
func (s *SessionService) RecordDecision(ctx context.Context, sessionID, callerID, role, verdict string) (*StatusView, error) {
	return s.recordVerdict(ctx, decisionGate, sessionID, callerID, role, verdict)
}

// RecordContract stores a participant's verdict on the encounter agreement.
func (s *SessionService) RecordContract(ctx context.Context, sessionID, callerID, role, verdict string) (*StatusView, error) {
	return s.recordVerdict(ctx, contractGate, sessionID, callerID, role, verdict)
}

func (s *SessionService) recordVerdict(
	ctx context.Context,
	gate mutualGate,
	sessionID, callerID, roleHint, verdict string,
) (*StatusView, error) {
	d, ok := model.ParseVerdict(verdict)
	if !ok {
		return nil, apperrors.InvalidInput("verdict", "must be accept or decline")
	}

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	role, err := resolveRole(sess, callerID, roleHint)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, sessionID, func(next *model.Session) (writeKind, error) {
		if existing := gate.get(next, role); existing != model.DecisionPending {
			if existing == d {
				return skipWrite, nil
			}
			return skipWrite, apperrors.Conflict("A different " + gate.name + " was already recorded for this role")
		}
		if next.Status != gate.status {
			return skipWrite, apperrors.Conflict("Session is " + string(next.Status) + ", not accepting " + gate.name + "s")
		}

		gate.set(next, role, d)
		switch {
		case d == model.DecisionDecline:
			if err := next.Advance(model.SessionStatusDeclined); err != nil {
				return skipWrite, apperrors.Conflict(err.Error())
			}
		case gate.get(next, role.Other()) == model.DecisionAccept:
			if err := next.Advance(gate.next); err != nil {
				return skipWrite, apperrors.Conflict(err.Error())
			}
		}
		return saveWrite, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("role", string(role)).
		Str(gate.name, string(d)).
		Str("status", string(updated.Status)).
		Msg(gate.name + " recorded")
	audit.Log(ctx, audit.Event{
		Type:      gate.event,
		UserID:    callerID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"role": string(role), "verdict": string(d)},
	})

	return s.view(updated, role), nil
}
