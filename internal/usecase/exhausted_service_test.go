package usecase

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

func TestSaveExhaustedEvent(t *testing.T) {
	h := newHarness(t)
	payload := model.DLQPayload{
		SourceSubject:   "careops.v1.public.bookings.ws-1",
		Workspace:       testWorkspace,
		OriginalPayload: json.RawMessage(`{"name":"Ana"}`),
		Error:           "validation failed: date",
		ErrorType:       "fatal",
		RetryCount:      4,
		Timestamp:       testNow.Add(-time.Hour),
	}

	require.NoError(t, h.exhausted.SaveExhaustedEvent(h.ctx, testWorkspace, payload))

	events, err := h.exhausted.ListExhausted(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, testWorkspace, e.WorkspaceID)
	assert.Equal(t, payload.SourceSubject, e.SourceSubject)
	assert.Equal(t, 4, e.RetryCount)
	assert.Equal(t, testNow, e.CreatedAt)
	assert.JSONEq(t, `{"name":"Ana"}`, string(e.OriginalPayload))

	var stored model.DLQPayload
	require.NoError(t, json.Unmarshal(e.DLQPayload, &stored))
	assert.Equal(t, "fatal", stored.ErrorType)
}

func TestSaveExhaustedEvent_DropsInvalidOriginalPayload(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.exhausted.SaveExhaustedEvent(h.ctx, testWorkspace, model.DLQPayload{
		SourceSubject:   "careops.v1.inbound.messages.ws-1",
		OriginalPayload: json.RawMessage(`{truncated`),
	}))
	events, err := h.exhausted.ListExhausted(h.ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].OriginalPayload)
}
