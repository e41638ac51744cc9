package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vairify/vaicheck-server-go/internal/client"
	"github.com/vairify/vaicheck-server-go/internal/httputil"
	"github.com/vairify/vaicheck-server-go/internal/model"
	"github.com/vairify/vaicheck-server-go/internal/service"
)

func staticServer(t *testing.T, view *service.StatusView) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, view)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Status(t *testing.T) {
	srv := staticServer(t, &service.StatusView{SessionID: "s-1", Status: model.SessionStatusQRShown, Version: 2})

	var out bytes.Buffer
	err := run(context.Background(), []string{"status", "--session", "s-1", "--token", "tok", "--base-url", srv.URL}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"status": "qr_shown"`)
}

func TestRun_WaitTimeoutExitsWithCode2(t *testing.T) {
	srv := staticServer(t, &service.StatusView{SessionID: "s-1", Status: model.SessionStatusDecisionsPending, Version: 4})

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"wait", "--session", "s-1", "--token", "tok", "--base-url", srv.URL,
		"--interval", "5ms", "--max-wait", "40ms",
	}, &out)

	var coder *exitError
	require.True(t, errors.As(err, &coder))
	assert.Equal(t, exitTimeout, coder.ExitCode())
	assert.ErrorIs(t, err, client.ErrPollTimeout)
	assert.Contains(t, out.String(), "decisions_pending")
}

func TestRun_Validation(t *testing.T) {
	t.Setenv("VAICHECK_TOKEN", "")

	assert.Error(t, run(context.Background(), nil, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), []string{"wait", "--token", "tok"}, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), []string{"wait", "--session", "s-1"}, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), []string{"frobnicate", "--session", "s-1", "--token", "tok"}, &bytes.Buffer{}))
}
