package model

import "time"

// DashboardMetrics is the cached projection shown on the staff dashboard.
type DashboardMetrics struct {
	TodayBookings        int64     `json:"today_bookings"`
	UpcomingBookings     int64     `json:"upcoming_bookings"`
	CompletedBookings    int64     `json:"completed_bookings"`
	NoShowBookings       int64     `json:"no_show_bookings"`
	NewInquiries         int64     `json:"new_inquiries"`
	OngoingConversations int64     `json:"ongoing_conversations"`
	UnansweredMessages   int64     `json:"unanswered_messages"`
	UnreadConversations  int64     `json:"unread_conversations"`
	PendingForms         int64     `json:"pending_forms"`
	OverdueForms         int64     `json:"overdue_forms"`
	CompletedForms       int64     `json:"completed_forms"`
	LowStockItems        int64     `json:"low_stock_items"`
	CriticalStockItems   int64     `json:"critical_stock_items"`
	UnreadAlerts         int64     `json:"unread_alerts"`
	ComputedAt           time.Time `json:"computed_at"`
}

// DecUnreadAlerts adjusts the projection for an alert marked read.
func (m *DashboardMetrics) DecUnreadAlerts() {
	if m.UnreadAlerts > 0 {
		m.UnreadAlerts--
	}
}

// DecUnreadConversations adjusts the projection for a conversation marked read.
func (m *DashboardMetrics) DecUnreadConversations() {
	if m.UnreadConversations > 0 {
		m.UnreadConversations--
	}
}
