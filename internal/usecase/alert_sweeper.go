package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// SweepLockName guards the periodic evaluators across replicas.
const SweepLockName = "alert-sweep"

// SweepReport counts what one sweep touched.
type SweepReport struct {
	FormsRaised         int `json:"forms_raised"`
	ConversationsRaised int `json:"conversations_raised"`
	Resolved            int `json:"resolved"`
	ResourcesChecked    int `json:"resources_checked"`
}

// AlertSweeper runs the time-based alert evaluators.
type AlertSweeper struct {
	alerts        *AlertService
	inventory     *InventoryService
	forms         storage.FormRepo
	conversations storage.ConversationRepo
	uncleared     storage.AlertRepo
	locker        Locker
	settings      Settings
	now           Clock
}

// NewAlertSweeper creates the sweeper.
func NewAlertSweeper(repos storage.Repositories, alerts *AlertService, inventory *InventoryService, locker Locker, settings Settings, now Clock) *AlertSweeper {
	return &AlertSweeper{
		alerts:        alerts,
		inventory:     inventory,
		forms:         repos.Forms,
		conversations: repos.Conversations,
		uncleared:     repos.Alerts,
		locker:        locker,
		settings:      settings,
		now:           now,
	}
}

// Run sweeps on every tick until ctx is done.
func (s *AlertSweeper) Run(ctx context.Context) {
	ctx = tenant.WithWorkspaceID(ctx, s.settings.WorkspaceID)
	log := logger.FromContext(ctx).Named("alert_sweeper")
	ticker := time.NewTicker(s.settings.Automation.SweepInterval)
	defer ticker.Stop()

	log.Info("Alert sweeper started", zap.Duration("interval", s.settings.Automation.SweepInterval))
	for {
		select {
		case <-ctx.Done():
			log.Info("Alert sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx, log)
		}
	}
}

func (s *AlertSweeper) tick(ctx context.Context, log *zap.Logger) {
	defer utils.RecoverWithLog(ctx, "alert_sweep")

	report, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, cache.ErrLockNotAcquired):
		log.Debug("Another replica holds the sweep lock")
	case err != nil:
		log.Error("Alert sweep failed", zap.Error(err))
	default:
		log.Debug("Alert sweep finished", zap.Any("report", report))
	}
}

// Sweep runs every evaluator once while holding the sweep lock.
func (s *AlertSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	err := s.locker.WithLock(ctx, SweepLockName, s.settings.Automation.SweepLockTTL, func(ctx context.Context) error {
		report = SweepReport{}
		var errs []error
		if err := s.sweepForms(ctx, &report); err != nil {
			errs = append(errs, fmt.Errorf("forms: %w", err))
		}
		if err := s.sweepConversations(ctx, &report); err != nil {
			errs = append(errs, fmt.Errorf("conversations: %w", err))
		}
		resources, err := s.inventory.ListResources(ctx)
		if err == nil {
			report.ResourcesChecked = len(resources)
			err = s.inventory.evaluate(ctx, resources)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("inventory: %w", err))
		}
		return errors.Join(errs...)
	})
	return report, err
}

// sweepForms raises one Forms alert per booking with forms outstanding past
// the overdue window, Critical past the critical window, and resolves forms
// alerts of bookings that owe nothing anymore.
func (s *AlertSweeper) sweepForms(ctx context.Context, report *SweepReport) error {
	warnBefore, criticalBefore := s.settings.formsCutoffs(s.now())
	overdue, err := s.forms.ListOutstandingSentBefore(ctx, warnBefore)
	if err != nil {
		return err
	}

	type bookingForms struct {
		name     string
		count    int
		critical bool
	}
	byBooking := make(map[string]*bookingForms)
	order := make([]string, 0)
	for _, sub := range overdue {
		bf, ok := byBooking[sub.BookingID]
		if !ok {
			bf = &bookingForms{name: sub.ContactName}
			byBooking[sub.BookingID] = bf
			order = append(order, sub.BookingID)
		}
		bf.count++
		if sub.SentAt != nil && sub.SentAt.Before(criticalBefore) {
			bf.critical = true
		}
	}

	for _, bookingID := range order {
		bf := byBooking[bookingID]
		candidate := model.AlertCandidate{
			Type:     model.AlertForms,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("%d form(s) overdue for %s", bf.count, bf.name),
			Related:  &model.RelatedEntity{Type: EntityBooking, ID: bookingID},
		}
		if bf.critical {
			candidate.Severity = model.SeverityCritical
			candidate.Message = fmt.Sprintf("Overdue: %d form(s) still pending for %s", bf.count, bf.name)
		}
		if _, err := s.alerts.Raise(ctx, candidate); err != nil {
			return err
		}
		report.FormsRaised++
	}

	open, err := s.uncleared.ListUnclearedByType(ctx, model.AlertForms)
	if err != nil {
		return err
	}
	for _, a := range open {
		if a.RelatedEntityType != EntityBooking || byBooking[a.RelatedEntityID] != nil {
			continue
		}
		subs, err := s.forms.ListByBooking(ctx, a.RelatedEntityID)
		if err != nil {
			return err
		}
		if anyOutstanding(subs) {
			continue
		}
		if err := s.alerts.Resolve(ctx, a.DedupKey); err != nil {
			return err
		}
		report.Resolved++
	}
	return nil
}

// sweepConversations raises a Warning for every thread waiting on staff and
// resolves the ones that got an answer.
func (s *AlertSweeper) sweepConversations(ctx context.Context, report *SweepReport) error {
	waiting, err := s.conversations.ListAwaitingStaff(ctx)
	if err != nil {
		return err
	}
	awaiting := make(map[string]bool, len(waiting))
	for _, c := range waiting {
		awaiting[c.ID] = true
		_, err := s.alerts.Raise(ctx, model.AlertCandidate{
			Type:     model.AlertConversation,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Unanswered message from %s", c.ContactName),
			Related:  &model.RelatedEntity{Type: EntityConversation, ID: c.ID},
		})
		if err != nil {
			return err
		}
		report.ConversationsRaised++
	}

	open, err := s.uncleared.ListUnclearedByType(ctx, model.AlertConversation)
	if err != nil {
		return err
	}
	for _, a := range open {
		if a.RelatedEntityType != EntityConversation || awaiting[a.RelatedEntityID] {
			continue
		}
		if err := s.alerts.Resolve(ctx, a.DedupKey); err != nil {
			return err
		}
		report.Resolved++
	}
	return nil
}

func anyOutstanding(subs []model.FormSubmission) bool {
	for i := range subs {
		if subs[i].Outstanding() {
			return true
		}
	}
	return false
}
