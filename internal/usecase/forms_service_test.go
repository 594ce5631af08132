package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

func TestSendFormsForBooking_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addTemplate("tpl-intake")
	out := h.book("sub-1")

	pending, err := h.forms.PendingFormsForBooking(h.ctx, out.Booking.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	completed, err := h.forms.CompleteFormSubmission(h.ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.FormCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	rec, err := h.orchestrator.ExecuteStep(h.ctx, out.Booking.ID, model.StepForms)
	require.NoError(t, err)
	assert.Equal(t, model.StepSucceeded, rec.Status)
	assert.Len(t, h.store.submissions, 1)
	assert.Equal(t, model.FormCompleted, h.store.submissions[0].Status, "re-sending never resets a completed form")

	pending, err = h.forms.PendingFormsForBooking(h.ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendFormsForBooking_IgnoresInactiveTemplates(t *testing.T) {
	h := newHarness(t)
	h.addTemplate("tpl-intake")
	h.store.templates[0].Status = model.FormTemplateDraft

	out := h.book("sub-1")
	assert.Equal(t, model.StepSucceeded, out.Steps[model.StepForms])
	assert.Empty(t, h.store.submissions)
	assert.Len(t, h.store.messagesOf(out.Conversation.ID), 1, "no form reminder without forms")
}

func TestCompleteFormSubmission_UnknownID(t *testing.T) {
	h := newHarness(t)

	_, err := h.forms.CompleteFormSubmission(h.ctx, "sub-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpsertFormTemplate(t *testing.T) {
	h := newHarness(t)

	tpl, err := h.forms.UpsertFormTemplate(h.ctx, model.FormTemplate{
		Name:               " Intake ",
		Status:             model.FormTemplateActive,
		LinkedBookingTypes: []string{testServiceID, testServiceID, " "},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, "Intake", tpl.Name)
	assert.Equal(t, []string{testServiceID}, []string(tpl.LinkedBookingTypes))

	_, err = h.forms.UpsertFormTemplate(h.ctx, model.FormTemplate{Name: "Broken", Status: "Live"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
