package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

type countQuery struct {
	target *int64
	model  interface{}
	where  string
	args   []interface{}
}

// DashboardCounts computes the dashboard projection from the database. today
// is the workspace-local calendar date; formsOverdueBefore is the sentAt cutoff
// for overdue forms.
func (r *PostgresRepo) DashboardCounts(ctx context.Context, today model.Date, formsOverdueBefore time.Time) (*model.DashboardMetrics, error) {
	m := &model.DashboardMetrics{}
	outstanding := []model.FormSubmissionStatus{model.FormPending, model.FormSent}
	active := []model.BookingStatus{model.BookingPending, model.BookingConfirmed}

	queries := []countQuery{
		{&m.TodayBookings, &model.Booking{}, "date = ? AND status IN ?", []interface{}{today, active}},
		{&m.UpcomingBookings, &model.Booking{}, "date > ? AND status IN ?", []interface{}{today, active}},
		{&m.CompletedBookings, &model.Booking{}, "status = ?", []interface{}{model.BookingCompleted}},
		{&m.NoShowBookings, &model.Booking{}, "status = ?", []interface{}{model.BookingNoShow}},
		{&m.NewInquiries, &model.Conversation{}, "status = ?", []interface{}{model.ConversationNew}},
		{&m.OngoingConversations, &model.Conversation{}, "status = ?", []interface{}{model.ConversationOpen}},
		{&m.UnansweredMessages, &model.Conversation{}, "last_message_sender = ? AND status <> ?", []interface{}{model.SenderCustomer, model.ConversationClosed}},
		{&m.UnreadConversations, &model.Conversation{}, "unread_count > 0", nil},
		{&m.PendingForms, &model.FormSubmission{}, "status IN ?", []interface{}{outstanding}},
		{&m.OverdueForms, &model.FormSubmission{}, "status IN ? AND sent_at < ?", []interface{}{outstanding, formsOverdueBefore}},
		{&m.CompletedForms, &model.FormSubmission{}, "status = ?", []interface{}{model.FormCompleted}},
		{&m.LowStockItems, &model.Resource{}, "quantity > 0 AND quantity <= threshold", nil},
		{&m.CriticalStockItems, &model.Resource{}, "quantity = 0", nil},
		{&m.UnreadAlerts, &model.Alert{}, "read = ? AND dismissed_at IS NULL", []interface{}{false}},
	}

	err := r.withRead(ctx, "DashboardCounts", "dashboard", func(db *gorm.DB) error {
		for _, q := range queries {
			if err := db.Model(q.model).Where(q.where, q.args...).Count(q.target).Error; err != nil {
				return checkConstraintViolation(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.ComputedAt = time.Now().UTC()
	return m, nil
}
