// Package service runs the reconciliation and audit sweep. The sweep is
// read-mostly: its only mutation is expiring lapsed holds. Counter repair
// happens solely through the explicit admin recount path.
package service

import (
	"context"
	"time"

	auditrepo "adops_backend/internal/audit/repository"
	invrepo "adops_backend/internal/inventory/repository"
	"adops_backend/internal/tenant"
	wfrepo "adops_backend/internal/workflow/repository"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DriftFinding is a counter row whose cache disagrees with the reservation
// rows.
type DriftFinding struct {
	EpisodeID uuid.UUID `json:"episodeId"`
	Placement string    `json:"placement"`
	Cached    invrepo.Counts
	Actual    invrepo.Counts
	// Overbooked is true when ground truth exceeds total capacity, which is
	// worse than a stale cache.
	Overbooked bool `json:"overbooked"`
}

// ExpiredHold records one lapsed hold the sweep released.
type ExpiredHold struct {
	ReservationID uuid.UUID `json:"reservationId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Quantity      int       `json:"quantity"`
	Released      bool      `json:"released"`
}

// Report is the structured outcome of one tenant sweep.
type Report struct {
	TenantID         uuid.UUID                       `json:"tenantId"`
	StartedAt        time.Time                       `json:"startedAt"`
	DurationMs       float64                         `json:"durationMs"`
	ExpiredHolds     []ExpiredHold                   `json:"expiredHolds"`
	Orphans          []auditrepo.OrphanedReservation `json:"orphans"`
	Drift            []DriftFinding                  `json:"drift"`
	BlockedDeletions []auditrepo.BlockedDeletion     `json:"blockedDeletions"`
	StalledCampaigns []auditrepo.StalledCampaign     `json:"stalledCampaigns"`
	AlertsFiled      int                             `json:"alertsFiled"`
}

// Findings reports the total number of violations found.
func (r Report) Findings() int {
	return len(r.Orphans) + len(r.Drift) + len(r.BlockedDeletions) + len(r.StalledCampaigns)
}

// ExpiredReleased counts the holds actually released this run.
func (r Report) ExpiredReleased() int {
	n := 0
	for _, e := range r.ExpiredHolds {
		if e.Released {
			n++
		}
	}
	return n
}

// ReservationSweeper is the slice of the reservation service the sweep uses
// to expire lapsed holds.
type ReservationSweeper interface {
	ExpireOne(ctx context.Context, scope tenant.Scope, res invrepo.Reservation) (bool, error)
}

// AlertFiler files deduplicated alerts.
type AlertFiler interface {
	File(ctx context.Context, scope tenant.Scope, params invrepo.UpsertAlertParams) (invrepo.Alert, error)
}

// SettingsReader supplies the tenant's SLA window.
type SettingsReader interface {
	GetSettings(ctx context.Context, scope tenant.Scope) (wfrepo.Settings, error)
}

// GroundTruth is the audit query surface.
type GroundTruth interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	FindOrphanedReservations(ctx context.Context, scope tenant.Scope) ([]auditrepo.OrphanedReservation, error)
	FindBlockedDeletions(ctx context.Context, scope tenant.Scope, now time.Time) ([]auditrepo.BlockedDeletion, error)
	FindStalledCampaigns(ctx context.Context, scope tenant.Scope, olderThan time.Time) ([]auditrepo.StalledCampaign, error)
}

const expiredSweepBatch = 500

type Service struct {
	truth        GroundTruth
	ledger       invrepo.Ledger
	reservations invrepo.Reservations
	sweeper      ReservationSweeper
	alerts       AlertFiler
	settings     SettingsReader
	log          *logger.Logger
	now          func() time.Time
}

func New(
	truth GroundTruth,
	ledger invrepo.Ledger,
	reservations invrepo.Reservations,
	sweeper ReservationSweeper,
	alerts AlertFiler,
	settings SettingsReader,
	log *logger.Logger,
) *Service {
	return &Service{
		truth:        truth,
		ledger:       ledger,
		reservations: reservations,
		sweeper:      sweeper,
		alerts:       alerts,
		settings:     settings,
		log:          log,
		now:          time.Now,
	}
}

// ListTenantIDs exposes sweep iteration to the scheduler.
func (s *Service) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.truth.ListTenantIDs(ctx)
}

// RunSweep audits one tenant. The checks run concurrently; expiry of lapsed
// holds runs afterwards, one hold at a time, each release idempotent so a
// crashed sweep can rerun from the top.
func (s *Service) RunSweep(ctx context.Context, scope tenant.Scope) (Report, error) {
	start := s.now()
	report := Report{TenantID: scope.TenantID(), StartedAt: start}

	settings, err := s.settings.GetSettings(ctx, scope)
	if err != nil {
		return report, err
	}
	slaCutoff := start.Add(-time.Duration(settings.StageSLAHours) * time.Hour)

	var expired []invrepo.Reservation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expired, err = s.reservations.ListExpired(gctx, scope, start, expiredSweepBatch)
		return err
	})
	g.Go(func() error {
		var err error
		report.Orphans, err = s.truth.FindOrphanedReservations(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		report.Drift, err = s.scanDrift(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		report.BlockedDeletions, err = s.truth.FindBlockedDeletions(gctx, scope, start)
		return err
	})
	g.Go(func() error {
		var err error
		report.StalledCampaigns, err = s.truth.FindStalledCampaigns(gctx, scope, slaCutoff)
		return err
	})
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, res := range expired {
		released, err := s.sweeper.ExpireOne(ctx, scope, res)
		if err != nil {
			// Keep sweeping; the failed hold is retried next run.
			s.log.Error("failed to expire hold",
				"reservation_id", res.ID.String(), "error", err)
		}
		report.ExpiredHolds = append(report.ExpiredHolds, ExpiredHold{
			ReservationID: res.ID,
			CampaignID:    res.CampaignID,
			EpisodeID:     res.EpisodeID,
			Placement:     string(res.Placement),
			Quantity:      res.Quantity,
			Released:      released,
		})
	}

	report.AlertsFiled = s.fileAlerts(ctx, scope, &report)
	report.DurationMs = float64(s.now().Sub(start).Microseconds()) / 1000

	s.log.SweepResult(scope.TenantID().String(), report.Findings(), report.ExpiredReleased(), report.DurationMs)
	return report, nil
}

// scanDrift recomputes every counter row without repairing it.
func (s *Service) scanDrift(ctx context.Context, scope tenant.Scope) ([]DriftFinding, error) {
	keys, err := s.ledger.ListCounterKeys(ctx, scope)
	if err != nil {
		return nil, err
	}

	var findings []DriftFinding
	for _, key := range keys {
		result, err := s.ledger.Recount(ctx, scope, key.EpisodeID, key.Placement, false)
		if err != nil {
			return nil, err
		}
		overbooked := result.Actual.ReservedSlots+result.Actual.BookedSlots > result.Actual.TotalSlots
		if !result.Drifted && !overbooked {
			continue
		}
		findings = append(findings, DriftFinding{
			EpisodeID:  key.EpisodeID,
			Placement:  string(key.Placement),
			Cached:     result.Cached,
			Actual:     result.Actual,
			Overbooked: overbooked,
		})
	}
	return findings, nil
}

// fileAlerts turns findings into deduplicated alerts. A failure to file one
// alert never aborts the sweep.
func (s *Service) fileAlerts(ctx context.Context, scope tenant.Scope, report *Report) int {
	filed := 0
	file := func(params invrepo.UpsertAlertParams) {
		if _, err := s.alerts.File(ctx, scope, params); err != nil {
			s.log.Error("failed to file alert", "alert_type", string(params.AlertType), "error", err)
			return
		}
		filed++
	}

	for _, d := range report.Drift {
		episodeID := d.EpisodeID
		placement := invrepo.Placement(d.Placement)
		alertType := invrepo.AlertDrift
		severity := invrepo.SeverityHigh
		if d.Overbooked {
			alertType = invrepo.AlertOverbooking
			severity = invrepo.SeverityCritical
		}
		file(invrepo.UpsertAlertParams{
			AlertType: alertType,
			Severity:  severity,
			EpisodeID: &episodeID,
			Placement: &placement,
			Details:   d,
		})
	}

	for _, o := range report.Orphans {
		episodeID := o.EpisodeID
		placement := invrepo.Placement(o.Placement)
		file(invrepo.UpsertAlertParams{
			AlertType: invrepo.AlertOrphanedReservation,
			Severity:  invrepo.SeverityMedium,
			EpisodeID: &episodeID,
			Placement: &placement,
			Details:   o,
		})
	}

	for _, b := range report.BlockedDeletions {
		severity := invrepo.SeverityLow
		if b.ValidBlockers > 0 {
			severity = invrepo.SeverityMedium
		}
		file(invrepo.UpsertAlertParams{
			AlertType: invrepo.AlertDeletionImpact,
			Severity:  severity,
			Details:   b,
		})
	}

	for _, c := range report.StalledCampaigns {
		severity := invrepo.SeverityLow
		if c.ActiveHolds > 0 {
			severity = invrepo.SeverityMedium
		}
		file(invrepo.UpsertAlertParams{
			AlertType: invrepo.AlertStatusInconsistency,
			Severity:  severity,
			Details:   c,
		})
	}

	return filed
}
