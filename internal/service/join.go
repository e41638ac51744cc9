package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
	"github.com/vairify/vaicheck-server-go/internal/util"
)

// JoinRequest identifies the session to join by scanned QR token or by typed code.
type JoinRequest struct {
	QRPayload string `json:"qrPayload"`
	Code      string `json:"code"`
}

// JoinSession binds callerID as the counterpart. Joining again with the same
// identity is a no-op.
func (s *SessionService) JoinSession(ctx context.Context, req JoinRequest, callerID string) (*StatusView, error) {
	sess, err := s.resolveJoinTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	// Re-joins skip the enrolment lookup so an idempotent retry stays a pure read.
	if sess.CounterpartID == nil || *sess.CounterpartID != callerID {
		if _, err := s.requireIdentity(ctx, callerID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	updated, err := s.mutate(ctx, sess.ID, func(next *model.Session) (writeKind, error) {
		if next.InitiatorID == callerID {
			return skipWrite, apperrors.ValidationError("Cannot join your own session")
		}
		if next.CounterpartID != nil {
			if *next.CounterpartID == callerID {
				return skipWrite, nil
			}
			return skipWrite, apperrors.AlreadyClaimed()
		}
		if next.Status != model.SessionStatusQRShown {
			return skipWrite, apperrors.InvalidState("Session is not open for joining")
		}
		if next.QRExpired(now) {
			return skipWrite, apperrors.Expired("Session QR code")
		}

		next.CounterpartID = &callerID
		next.JoinedAt = &now
		if err := next.Advance(model.SessionStatusJoined, model.SessionStatusDecisionsPending); err != nil {
			return skipWrite, apperrors.InvalidState(err.Error())
		}
		return saveWrite, nil
	})
	if err != nil {
		log.Warn().
			Str("sessionId", sess.ID).
			Str("code", string(apperrors.GetCode(err))).
			Msg("join rejected")
		return nil, err
	}

	log.Info().Str("sessionId", updated.ID).Str("status", string(updated.Status)).Msg("counterpart joined")
	audit.Log(ctx, audit.Event{Type: audit.EventSessionJoin, UserID: callerID, SessionID: updated.ID})

	return s.view(updated, model.RoleCounterpart), nil
}

func (s *SessionService) resolveJoinTarget(ctx context.Context, req JoinRequest) (*model.Session, error) {
	if req.QRPayload != "" {
		return s.resolveByToken(ctx, req.QRPayload)
	}
	if req.Code == "" {
		return nil, apperrors.ValidationError("qrPayload or code is required")
	}

	code := NormalizeCode(req.Code)
	if !isWellFormedCode(code) {
		return nil, apperrors.InvalidInput("code", "must be 8 characters")
	}
	sess, err := s.sessions.FindActiveByCode(ctx, code)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if sess == nil {
		log.Debug().Str("code", util.MaskCode(code)).Msg("join code not found")
		return nil, apperrors.NotFound("Session")
	}
	return sess, nil
}

func (s *SessionService) resolveByToken(ctx context.Context, token string) (*model.Session, error) {
	payload, err := s.qr.Decode(token)
	if errors.Is(err, ErrInvalidQRToken) {
		return nil, apperrors.InvalidInput("qrPayload", "not a valid session QR code")
	}
	if err != nil {
		return nil, err
	}

	sess, err := s.load(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Code != payload.Code || sess.QRPayload == nil || !util.ConstantTimeEqual(*sess.QRPayload, token) {
		return nil, apperrors.InvalidInput("qrPayload", "does not match the session")
	}
	if sess.CounterpartID == nil && payload.Expired(s.now()) {
		return nil, apperrors.Expired("Session QR code")
	}
	return sess, nil
}
