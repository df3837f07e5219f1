// Package tokens runs the credential lifecycle sweep. Long-lived tokens
// are flagged before they expire so operators re-authorize in time;
// short-lived tokens are refreshed automatically while the refresh
// window is still open.
package tokens

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// Store is the settings-store subset the sweep reads and updates.
type Store interface {
	ListCredentialsByChannel(ctx context.Context, channel models.Channel) ([]models.ChannelCredential, error)
	UpdateCredentialStatus(ctx context.Context, tenantID string, channel models.Channel, status models.TokenStatus) error
}

// Refresher exchanges a tenant's short-lived token for a fresh one and
// persists the result.
type Refresher interface {
	RefreshToken(ctx context.Context) error
}

// Sweeper is the background lifecycle worker. One instance serves all
// tenants.
type Sweeper struct {
	cfg        config.SweepConfig
	store      Store
	refreshers map[string]Refresher // keyed by tenant id
	logger     logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates the lifecycle worker.
func NewSweeper(cfg config.SweepConfig, store Store, refreshers map[string]Refresher, log logger.Logger) *Sweeper {
	return &Sweeper{
		cfg:        cfg,
		store:      store,
		refreshers: refreshers,
		logger:     log,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the periodic sweep loops.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("token sweep started",
		logger.Duration("long_lived_interval", s.cfg.LongLivedInterval),
		logger.Duration("short_lived_interval", s.cfg.ShortLivedInterval),
	)
}

// Stop signals the worker and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("token sweep stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	longTicker := time.NewTicker(s.cfg.LongLivedInterval)
	defer longTicker.Stop()
	shortTicker := time.NewTicker(s.cfg.ShortLivedInterval)
	defer shortTicker.Stop()

	// First pass right away so a restart never leaves stale statuses
	// sitting until the next tick.
	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-longTicker.C:
			s.sweepLongLived(ctx)
		case <-shortTicker.C:
			s.sweepShortLived(ctx)
		}
	}
}

// RunOnce executes both passes once. Used on startup and by the
// command-line sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.sweepLongLived(ctx)
	s.sweepShortLived(ctx)
}

// sweepLongLived walks long-lived credentials and moves their status
// along active -> expiring -> expired. Both transitions are idempotent:
// re-marking an already-flagged credential is a no-op update.
func (s *Sweeper) sweepLongLived(ctx context.Context) {
	creds, err := s.store.ListCredentialsByChannel(ctx, models.ChannelInstagram)
	if err != nil {
		s.logger.Error("long-lived sweep: list credentials failed", logger.Error(err))
		return
	}

	now := time.Now()
	for _, cred := range creds {
		if cred.ExpiresAt == nil {
			continue
		}

		var target models.TokenStatus
		switch {
		case !cred.ExpiresAt.After(now):
			target = models.TokenStatusExpired
		case cred.DaysToExpiry(now) <= s.cfg.WarningDays:
			target = models.TokenStatusExpiring
		default:
			continue
		}

		if cred.TokenStatus == target {
			continue
		}
		if err := s.store.UpdateCredentialStatus(ctx, cred.TenantID, cred.Channel, target); err != nil {
			s.logger.Error("long-lived sweep: status update failed",
				logger.String("tenant_id", cred.TenantID),
				logger.Error(err),
			)
			continue
		}
		s.logger.Warn("credential lifecycle transition",
			logger.String("tenant_id", cred.TenantID),
			logger.String("channel", string(cred.Channel)),
			logger.String("status", string(target)),
			logger.Time("expires_at", *cred.ExpiresAt),
		)
	}
}

// sweepShortLived refreshes short-lived tokens that are inside the
// refresh margin. Tenants are paced so a large fleet does not hammer the
// token endpoint, and one tenant's failure never stops the rest.
func (s *Sweeper) sweepShortLived(ctx context.Context) {
	creds, err := s.store.ListCredentialsByChannel(ctx, models.ChannelTwitter)
	if err != nil {
		s.logger.Error("short-lived sweep: list credentials failed", logger.Error(err))
		return
	}

	pace := rate.NewLimiter(rate.Every(s.cfg.TenantDelay), 1)
	now := time.Now()

	for _, cred := range creds {
		if cred.ExpiresAt == nil || cred.ExpiresAt.After(now.Add(s.cfg.RefreshMargin)) {
			continue
		}

		refresher, ok := s.refreshers[cred.TenantID]
		if !ok {
			continue
		}

		if err := pace.Wait(ctx); err != nil {
			return
		}

		if err := refresher.RefreshToken(ctx); err != nil {
			s.logger.Error("short-lived sweep: refresh failed",
				logger.String("tenant_id", cred.TenantID),
				logger.Error(err),
			)
			if !cred.ExpiresAt.After(now) && cred.TokenStatus != models.TokenStatusExpired {
				if markErr := s.store.UpdateCredentialStatus(ctx, cred.TenantID, cred.Channel, models.TokenStatusExpired); markErr != nil {
					s.logger.Error("short-lived sweep: expired mark failed",
						logger.String("tenant_id", cred.TenantID),
						logger.Error(markErr),
					)
				}
			}
			continue
		}

		s.logger.Info("short-lived token refreshed",
			logger.String("tenant_id", cred.TenantID),
			logger.String("channel", string(cred.Channel)),
		)
	}
}
