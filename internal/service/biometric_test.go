package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

func TestCompleteInitialVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("match issues QR payload", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)

		shown, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveMatch)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusQRShown, shown.Status)
		assert.True(t, shown.InitiatorVerified)
		require.NotNil(t, shown.QRPayload)
		require.NotNil(t, shown.QRExpiresAt)
		assert.Equal(t, f.now.Add(30*time.Minute).Unix(), shown.QRExpiresAt.Unix())

		payload, err := f.svc.qr.Decode(*shown.QRPayload)
		require.NoError(t, err)
		assert.Equal(t, v.SessionID, payload.SessionID)
		assert.Equal(t, v.Code, payload.Code)
		assert.Equal(t, "VAI-P001", payload.InitiatorNumber)

		f.oracle.AssertCalled(t, "Compare", mock.Anything, "ref://provider", liveMatch)
	})

	t.Run("repeat after success skips the oracle", func(t *testing.T) {
		f := newFixture(t)
		v := f.shown(t)

		again, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveNoMatch)
		require.NoError(t, err)
		assert.Equal(t, *v.QRPayload, *again.QRPayload)
		f.oracle.AssertNumberOfCalls(t, "Compare", 1)
	})

	t.Run("only the initiator may verify", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)

		_, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, client, liveMatch)
		requireCode(t, err, apperrors.ErrCodeForbidden)
		f.oracle.AssertNotCalled(t, "Compare", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("live image required", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)

		_, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, "")
		requireCode(t, err, apperrors.ErrCodeMissingRequired)
	})

	t.Run("non-match counts attempts then escalates", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)

		_, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveNoMatch)
		requireCode(t, err, apperrors.ErrCodeFailedVerification)
		appErr, _ := apperrors.AsAppError(err)
		assert.Equal(t, map[string]int{"attemptsRemaining": 2}, appErr.Details)

		_, err = f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveNoMatch)
		requireCode(t, err, apperrors.ErrCodeFailedVerification)

		status, err := f.svc.GetSessionStatus(ctx, v.SessionID, provider)
		require.NoError(t, err)
		require.NotNil(t, status.AttemptsRemaining)
		assert.Equal(t, 1, *status.AttemptsRemaining)

		escalated, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveNoMatch)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusManualReviewPending, escalated.Status)
		assert.Equal(t, DispositionWait, escalated.Disposition)
		require.NotNil(t, escalated.ReviewReason)
		assert.Equal(t, model.FailureVerification, *escalated.ReviewReason)

		sess := f.session(t, v.SessionID)
		assert.False(t, sess.InitiatorVerified)
		assert.Nil(t, sess.QRPayload)
	})

	t.Run("caller cancellation leaves the session untouched", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)
		f.oracle.On("Compare", mock.Anything, mock.Anything, "live-abandoned").Return(false, context.Canceled)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.svc.CompleteInitialVerification(cancelled, v.SessionID, provider, "live-abandoned")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)

		sess := f.session(t, v.SessionID)
		assert.Equal(t, model.SessionStatusInitiated, sess.Status)
		assert.Nil(t, sess.ReviewReason)
		assert.Equal(t, 0, sess.InitiatorAttempts)
		assert.Equal(t, v.Version, sess.Version)
	})

	t.Run("oracle deadline still goes to manual review", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)
		f.oracle.On("Compare", mock.Anything, mock.Anything, "live-slow").Return(false, context.DeadlineExceeded)

		pending, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, "live-slow")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusManualReviewPending, pending.Status)
		require.NotNil(t, pending.ReviewReason)
		assert.Equal(t, model.FailureSystem, *pending.ReviewReason)
	})

	t.Run("oracle outage goes to manual review", func(t *testing.T) {
		f := newFixture(t)
		v := f.created(t)

		pending, err := f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveDown)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusManualReviewPending, pending.Status)
		require.NotNil(t, pending.ReviewReason)
		assert.Equal(t, model.FailureSystem, *pending.ReviewReason)
		assert.False(t, pending.InitiatorVerified)

		_, err = f.svc.CompleteInitialVerification(ctx, v.SessionID, provider, liveMatch)
		requireCode(t, err, apperrors.ErrCodeConflict)
	})
}

func TestSubmitFinalVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("first pass waits for the other role", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)

		v, err := f.svc.SubmitFinalVerification(ctx, id, provider, "initiator", liveMatch)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusFinalVerification, v.Status)
		assert.True(t, v.InitiatorFinalVerified)
		assert.Equal(t, DispositionWait, v.Disposition)
		assert.Nil(t, v.EncounterID)
	})

	t.Run("repeat after success returns same result without oracle call", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)
		_, err := f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
		require.NoError(t, err)
		calls := len(f.oracle.Calls)

		v, err := f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
		require.NoError(t, err)
		assert.True(t, v.InitiatorFinalVerified)
		assert.Len(t, f.oracle.Calls, calls)
	})

	t.Run("repeat after completion returns the encounter", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)
		_, err := f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
		require.NoError(t, err)
		done, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveMatch)
		require.NoError(t, err)

		again, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveMatch)
		require.NoError(t, err)
		assert.Equal(t, *done.EncounterID, *again.EncounterID)
		assert.Equal(t, 1, f.store.EncounterCount(id))
	})

	t.Run("attempt cap applies to the final checkpoint too", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)

		for i := 0; i < 2; i++ {
			_, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveNoMatch)
			requireCode(t, err, apperrors.ErrCodeFailedVerification)
		}
		v, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveNoMatch)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusManualReviewPending, v.Status)

		sess := f.session(t, id)
		assert.Equal(t, model.CheckpointFinal, *sess.ReviewCheckpoint)
		assert.Equal(t, model.RoleCounterpart, *sess.ReviewRole)
		assert.Equal(t, model.SessionStatusFinalVerification, *sess.ResumeStatus)
	})

	t.Run("other role waits while a review is open", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)

		_, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveDown)
		require.NoError(t, err)

		_, err = f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
		requireCode(t, err, apperrors.ErrCodeConflict)
		assert.False(t, f.session(t, id).InitiatorFinalVerified)
	})

	t.Run("success resets the attempt counter", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)

		_, err := f.svc.SubmitFinalVerification(ctx, id, provider, "", liveNoMatch)
		requireCode(t, err, apperrors.ErrCodeFailedVerification)
		assert.Equal(t, 1, f.session(t, id).InitiatorAttempts)

		_, err = f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
		require.NoError(t, err)
		assert.Equal(t, 0, f.session(t, id).InitiatorAttempts)
	})
}
