//go:build integration

package integration_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

func (s *BaseIntegrationSuite) TestConcurrentContactResolutionCreatesOne() {
	resolver := usecase.NewContactResolver(s.App.Repos.Contacts)
	email := gofakeit.Email()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Mixed case must normalize onto the same contact.
			in := model.ContactInput{Name: gofakeit.Name(), Email: email}
			if i%2 == 1 {
				in.Email = strings.ToUpper(email)
			}
			c, err := resolver.FindOrCreateContact(s.Scoped(), in)
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i], "worker %d", i)
		s.Equal(ids[0], ids[i], "worker %d resolved a different contact", i)
	}

	stored, err := s.App.Repos.Contacts.FindByEmail(s.Scoped(), model.NormalizeEmail(email))
	s.Require().NoError(err)
	s.Equal(ids[0], stored.ID)
}

func (s *BaseIntegrationSuite) TestConcurrentConversationLinkingCreatesOne() {
	ctx := s.Scoped()
	contact, err := usecase.NewContactResolver(s.App.Repos.Contacts).
		FindOrCreateContact(ctx, model.ContactInput{Name: gofakeit.Name(), Email: gofakeit.Email()})
	s.Require().NoError(err)
	linker := usecase.NewConversationLinker(s.App.Repos.Contacts, s.App.Repos.Conversations)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := linker.FindOrCreateConversation(s.Scoped(), contact.ID, contact.Name, model.ConversationOverrides{})
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i], "worker %d", i)
		s.Equal(ids[0], ids[i], "worker %d linked a different conversation", i)
	}

	var count int
	query := fmt.Sprintf("SELECT count(*) FROM %q.conversations WHERE contact_id = $1", storage.SchemaName(s.WorkspaceID))
	s.Require().NoError(s.db.QueryRowContext(ctx, query, contact.ID).Scan(&count))
	s.Equal(1, count)
}

func (s *BaseIntegrationSuite) TestDeductionNeverGoesNegative() {
	ctx := s.Scoped()
	_, err := s.App.Inventory.UpsertResource(ctx, model.Resource{
		ID:               "res-gloves",
		Name:             "Gloves",
		Quantity:         1,
		Threshold:        0,
		LinkedServiceIDs: []string{DefaultServiceID},
	})
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err := s.App.Inventory.DeductResourceUsage(ctx, DefaultServiceID)
		s.Require().NoError(err)
	}

	res, err := s.App.Repos.Resources.FindByID(ctx, "res-gloves")
	s.Require().NoError(err)
	s.Equal(0, res.Quantity)

	alerts, err := s.App.Alerts.ListAlerts(ctx, model.AlertFilter{})
	s.Require().NoError(err)
	var raised int
	for _, a := range alerts {
		if a.Type == model.AlertInventory {
			raised++
		}
	}
	s.Equal(1, raised, "a depleted resource raises one deduplicated alert")
}

func (s *BaseIntegrationSuite) TestRedisSnapshotCache() {
	ctx := s.Scoped()
	store := cache.NewRedisStore(s.App.Redis, s.WorkspaceID, time.Minute, time.Minute)

	_, err := store.GetSnapshot(ctx)
	s.ErrorIs(err, cache.ErrCacheMiss)

	snap, err := s.App.Workspace.Snapshot(ctx)
	s.Require().NoError(err)
	s.True(snap.Workspace.Activated)

	cached, err := store.GetSnapshot(ctx)
	s.Require().NoError(err, "Snapshot should populate the cache")
	s.Equal(snap.Workspace.ID, cached.Workspace.ID)
	_, ok := cached.Service(DefaultServiceID)
	s.True(ok)

	s.App.Workspace.Invalidate(ctx)
	_, err = store.GetSnapshot(ctx)
	s.ErrorIs(err, cache.ErrCacheMiss)
}

func (s *BaseIntegrationSuite) TestRedisLockerExcludesConcurrentHolders() {
	ctx := s.Scoped()
	locker := cache.NewLocker(s.App.Redis, s.WorkspaceID)
	name := "itest-" + uuid.NewString()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- locker.WithLock(ctx, name, 10*time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := locker.WithLock(ctx, name, 10*time.Second, func(context.Context) error { return nil })
	s.True(errors.Is(err, cache.ErrLockNotAcquired), "second holder must be refused, got %v", err)

	close(release)
	s.Require().NoError(<-done)

	s.NoError(locker.WithLock(ctx, name, 10*time.Second, func(context.Context) error { return nil }))
}

func (s *BaseIntegrationSuite) TestSweepUnderLock() {
	report, err := s.App.Sweeper.Sweep(s.Scoped())
	s.Require().NoError(err)
	s.Zero(report.FormsRaised)
	s.Zero(report.ConversationsRaised)
}
