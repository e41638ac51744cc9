package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// CompleteInitialVerification runs the initiator's identity proof. On a match
// the session moves to qr_shown and the view carries the signed QR payload.
func (s *SessionService) CompleteInitialVerification(ctx context.Context, sessionID, callerID, liveImage string) (*StatusView, error) {
	return s.runGate(ctx, model.CheckpointInitial, sessionID, callerID, string(model.RoleInitiator), liveImage)
}

// SubmitFinalVerification runs the pre-encounter re-check for one role. The
// second successful check completes the session and creates the encounter.
func (s *SessionService) SubmitFinalVerification(ctx context.Context, sessionID, callerID, role, liveImage string) (*StatusView, error) {
	return s.runGate(ctx, model.CheckpointFinal, sessionID, callerID, role, liveImage)
}

func (s *SessionService) runGate(
	ctx context.Context,
	cp model.Checkpoint,
	sessionID, callerID, roleHint, liveImage string,
) (*StatusView, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	role, err := resolveRole(sess, callerID, roleHint)
	if err != nil {
		return nil, err
	}
	if gatePassed(sess, cp, role) {
		return s.view(sess, role), nil
	}
	if err := checkGateOpen(sess, cp); err != nil {
		return nil, err
	}
	if liveImage == "" {
		return nil, apperrors.MissingRequired("liveImage")
	}

	identity, err := s.requireIdentity(ctx, callerID)
	if err != nil {
		return nil, err
	}

	match, oracleErr := s.oracle.Compare(ctx, identity.ReferenceImageURL, liveImage)
	if callerGone(ctx, oracleErr) {
		log.Info().Str("sessionId", sessionID).Str("checkpoint", string(cp)).Msg("biometric check abandoned by caller")
		return nil, fmt.Errorf("biometric check abandoned: %w", context.Canceled)
	}
	switch {
	case oracleErr != nil:
		log.Error().Err(oracleErr).Str("sessionId", sessionID).Str("checkpoint", string(cp)).Msg("biometric oracle unavailable")
		s.metrics.oracle(ctx, string(cp), string(model.FailureSystem))
	case match:
		s.metrics.oracle(ctx, string(cp), "match")
	default:
		s.metrics.oracle(ctx, string(cp), string(model.FailureVerification))
	}

	now := s.now()
	remaining := -1
	updated, err := s.mutate(ctx, sessionID, func(next *model.Session) (writeKind, error) {
		remaining = -1
		if gatePassed(next, cp, role) {
			return skipWrite, nil
		}
		if err := checkGateOpen(next, cp); err != nil {
			return skipWrite, err
		}

		switch {
		case oracleErr != nil:
			return enterReview(next, cp, role, model.FailureSystem)
		case match:
			return s.passGate(next, cp, role, identity.VerificationNumber, now)
		}

		attempts := next.Attempts(role) + 1
		next.SetAttempts(role, attempts)
		if attempts >= s.maxAttempt {
			return enterReview(next, cp, role, model.FailureVerification)
		}
		remaining = s.maxAttempt - attempts
		return saveWrite, nil
	})
	if err != nil {
		return nil, err
	}

	s.auditGate(ctx, updated, cp, role, callerID)

	if remaining >= 0 {
		return nil, apperrors.FailedVerification(remaining)
	}
	if cp == model.CheckpointFinal && updated.Status == model.SessionStatusFinalVerification && gatePassed(updated, cp, role) {
		// The other role may have completed the session since our write.
		if latest, err := s.load(ctx, sessionID); err == nil {
			updated = latest
		}
	}
	return s.view(updated, role), nil
}

// callerGone reports whether the oracle call failed only because the caller's
// own request was cancelled. Deadlines still count as oracle failures.
func callerGone(ctx context.Context, oracleErr error) bool {
	if oracleErr == nil {
		return false
	}
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(oracleErr, context.Canceled)
}

func gatePassed(sess *model.Session, cp model.Checkpoint, role model.Role) bool {
	if cp == model.CheckpointInitial {
		return sess.InitiatorVerified
	}
	return sess.FinalVerified(role)
}

func checkGateOpen(sess *model.Session, cp model.Checkpoint) error {
	want := model.SessionStatusInitiated
	if cp == model.CheckpointFinal {
		want = model.SessionStatusFinalVerification
	}
	switch sess.Status {
	case want:
		return nil
	case model.SessionStatusManualReviewPending:
		return apperrors.Conflict("Session is awaiting manual review")
	}
	return apperrors.Conflict("Session is " + string(sess.Status) + ", not at the " + string(cp) + " verification step")
}

// passGate marks the checkpoint verified. path is the status walk that leads
// into the checkpoint, which differs when a reviewer approves.
func (s *SessionService) passGate(
	sess *model.Session,
	cp model.Checkpoint,
	role model.Role,
	initiatorNumber string,
	now time.Time,
	path ...model.SessionStatus,
) (writeKind, error) {
	sess.SetAttempts(role, 0)

	if cp == model.CheckpointInitial {
		sess.InitiatorVerified = true
		expiresAt := now.Add(s.qrTTL)
		token, err := s.qr.Encode(QRPayload{
			Type:            qrPayloadType,
			SessionID:       sess.ID,
			Code:            sess.Code,
			InitiatorNumber: initiatorNumber,
			ExpiresAt:       expiresAt.Unix(),
		})
		if err != nil {
			return skipWrite, apperrors.Internal("failed to issue QR payload")
		}
		sess.QRPayload = &token
		sess.QRExpiresAt = &expiresAt
		if err := sess.Advance(append(path, model.SessionStatusQRShown)...); err != nil {
			return skipWrite, apperrors.Conflict(err.Error())
		}
		return saveWrite, nil
	}

	sess.SetFinalVerified(role)
	if len(path) > 0 {
		if err := sess.Advance(path...); err != nil {
			return skipWrite, apperrors.Conflict(err.Error())
		}
	}
	return finishIfReady(sess, now)
}

// enterReview parks the session until a reviewer rules on the interrupted checkpoint.
func enterReview(sess *model.Session, cp model.Checkpoint, role model.Role, reason model.FailureReason) (writeKind, error) {
	resume := sess.Status
	if err := sess.Advance(model.SessionStatusManualReviewPending); err != nil {
		return skipWrite, apperrors.Conflict(err.Error())
	}
	sess.ReviewCheckpoint = &cp
	sess.ReviewRole = &role
	sess.ReviewReason = &reason
	sess.ResumeStatus = &resume
	sess.ManualReviewOutcome = nil
	sess.ReviewedBy = nil
	return saveWrite, nil
}

func (s *SessionService) auditGate(ctx context.Context, sess *model.Session, cp model.Checkpoint, role model.Role, userID string) {
	event := audit.EventVerificationFailed
	switch {
	case sess.Status == model.SessionStatusManualReviewPending:
		event = audit.EventManualReviewOpened
	case gatePassed(sess, cp, role):
		event = audit.EventVerificationPassed
	}
	log.Info().
		Str("sessionId", sess.ID).
		Str("checkpoint", string(cp)).
		Str("role", string(role)).
		Str("status", string(sess.Status)).
		Msg("biometric checkpoint evaluated")
	audit.Log(ctx, audit.Event{
		Type:      event,
		UserID:    userID,
		SessionID: sess.ID,
		Details:   map[string]interface{}{"checkpoint": string(cp), "role": string(role)},
	})
}
