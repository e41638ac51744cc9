package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// ReviewItem is one entry in the manual review queue.
type ReviewItem struct {
	SessionID     string               `json:"sessionId"`
	Checkpoint    *model.Checkpoint    `json:"checkpoint"`
	Role          *model.Role          `json:"role"`
	Reason        *model.FailureReason `json:"reason"`
	ParticipantID string               `json:"participantId"`
	Since         time.Time            `json:"since"`
}

func (s *SessionService) ListPendingReviews(ctx context.Context) ([]ReviewItem, error) {
	sessions, err := s.sessions.ListPendingReview(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	items := make([]ReviewItem, 0, len(sessions))
	for _, sess := range sessions {
		item := ReviewItem{
			SessionID:  sess.ID,
			Checkpoint: sess.ReviewCheckpoint,
			Role:       sess.ReviewRole,
			Reason:     sess.ReviewReason,
			Since:      sess.UpdatedAt,
		}
		if sess.ReviewRole != nil {
			item.ParticipantID = sess.ParticipantID(*sess.ReviewRole)
		}
		items = append(items, item)
	}
	return items, nil
}

// ResolveManualReview applies a reviewer's ruling. Approval completes the
// interrupted checkpoint exactly as an oracle match would; rejection declines
// the session.
func (s *SessionService) ResolveManualReview(ctx context.Context, sessionID, outcome, reviewerID string) (*StatusView, error) {
	o, ok := model.ParseReviewOutcome(outcome)
	if !ok {
		return nil, apperrors.InvalidInput("outcome", "must be approved or rejected")
	}

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var initiatorNumber string
	if o == model.ReviewApproved && sess.ReviewCheckpoint != nil && *sess.ReviewCheckpoint == model.CheckpointInitial {
		identity, err := s.requireIdentity(ctx, sess.InitiatorID)
		if err != nil {
			return nil, err
		}
		initiatorNumber = identity.VerificationNumber
	}

	now := s.now()
	updated, err := s.mutate(ctx, sessionID, func(next *model.Session) (writeKind, error) {
		if next.Status != model.SessionStatusManualReviewPending {
			if next.ManualReviewOutcome != nil && *next.ManualReviewOutcome == o {
				return skipWrite, nil
			}
			return skipWrite, apperrors.InvalidState("Session is not awaiting manual review")
		}
		if next.ReviewCheckpoint == nil || next.ReviewRole == nil {
			return skipWrite, apperrors.Internal("review checkpoint missing")
		}
		cp, role := *next.ReviewCheckpoint, *next.ReviewRole
		resume := resumeStatus(next, cp)

		next.ClearReview()
		next.ManualReviewOutcome = &o
		next.ReviewedBy = &reviewerID

		if o == model.ReviewRejected {
			if err := next.Advance(model.SessionStatusDeclined); err != nil {
				return skipWrite, apperrors.Conflict(err.Error())
			}
			return saveWrite, nil
		}

		next.VerificationMethod = model.VerificationManual
		if cp == model.CheckpointInitial {
			if initiatorNumber == "" {
				return skipWrite, apperrors.Conflict("Review checkpoint changed, please reload")
			}
		}
		return s.passGate(next, cp, role, initiatorNumber, now, resume)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("outcome", string(o)).
		Str("status", string(updated.Status)).
		Msg("manual review resolved")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventManualReviewClosed,
		UserID:    reviewerID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"outcome": string(o)},
	})

	return s.view(updated, ""), nil
}

// resumeStatus is the gate status a review was opened from. Rows written
// before the column existed fall back to the checkpoint's own gate.
func resumeStatus(sess *model.Session, cp model.Checkpoint) model.SessionStatus {
	if sess.ResumeStatus != nil {
		return *sess.ResumeStatus
	}
	if cp == model.CheckpointInitial {
		return model.SessionStatusInitiated
	}
	return model.SessionStatusFinalVerification
}
