package model

import (
	"errors"
	"fmt"
)

var ErrIllegalTransition = errors.New("illegal session transition")

var transitions = map[SessionStatus][]SessionStatus{
	SessionStatusInitiated:         {SessionStatusQRShown, SessionStatusManualReviewPending},
	SessionStatusQRShown:           {SessionStatusJoined},
	SessionStatusJoined:            {SessionStatusDecisionsPending, SessionStatusDeclined},
	SessionStatusDecisionsPending:  {SessionStatusContractReview, SessionStatusDeclined},
	SessionStatusContractReview:    {SessionStatusFinalVerification, SessionStatusDeclined},
	SessionStatusFinalVerification: {SessionStatusCompleted, SessionStatusManualReviewPending},
	// Approval re-enters the interrupted gate; rejection ends the session.
	SessionStatusManualReviewPending: {
		SessionStatusInitiated,
		SessionStatusFinalVerification,
		SessionStatusDeclined,
	},
}

func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance walks the session through each status in path. Only the last status
// is kept, but every hop must be legal.
func (s *Session) Advance(path ...SessionStatus) error {
	current := s.Status
	for _, next := range path {
		if !CanTransition(current, next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
		}
		current = next
	}
	s.Status = current
	return nil
}

// CheckInvariants validates the cross-field rules every persisted session must satisfy.
func (s *Session) CheckInvariants() error {
	completed := s.Status == SessionStatusCompleted
	if completed != (s.EncounterID != nil) {
		return fmt.Errorf("session %s: encounter id must be set iff completed (status %s)", s.ID, s.Status)
	}
	if completed && !s.BothFinalVerified() {
		return fmt.Errorf("session %s: completed without both final verifications", s.ID)
	}
	if s.InitiatorDecision == DecisionDecline && s.CounterpartDecision == DecisionDecline {
		return fmt.Errorf("session %s: both decisions are decline", s.ID)
	}
	declined := s.InitiatorDecision == DecisionDecline || s.CounterpartDecision == DecisionDecline ||
		s.InitiatorContract == DecisionDecline || s.CounterpartContract == DecisionDecline
	if declined && s.Status != SessionStatusDeclined {
		return fmt.Errorf("session %s: decline recorded but status is %s", s.ID, s.Status)
	}
	if (s.InitiatorFinalVerified || s.CounterpartFinalVerified) && !s.InitiatorVerified {
		return fmt.Errorf("session %s: final verification without initial verification", s.ID)
	}
	if s.CounterpartID == nil {
		switch s.Status {
		case SessionStatusInitiated, SessionStatusQRShown, SessionStatusManualReviewPending, SessionStatusDeclined:
		default:
			return fmt.Errorf("session %s: status %s requires a counterpart", s.ID, s.Status)
		}
	}
	return nil
}
