// Package scheduler runs periodic compliance scans across every organization.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
	"truconn/pkg/requestcontext"
)

// OrganizationLister enumerates the organizations to scan.
type OrganizationLister interface {
	ListIDs(ctx context.Context) ([]id.OrganizationID, error)
}

// Scanner runs one organization's scan.
type Scanner interface {
	Run(ctx context.Context, orgID id.OrganizationID) (*models.Report, error)
}

// Summary is the outcome of one pass over all organizations.
type Summary struct {
	Organizations int
	Succeeded     int
	Failed        int
}

// Scheduler scans every organization on a cron schedule. A pass that is still
// running when the next tick fires is not overlapped.
type Scheduler struct {
	orgs        OrganizationLister
	scanner     Scanner
	logger      *slog.Logger
	concurrency int
	scanTimeout time.Duration
	now         func() time.Time

	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithConcurrency bounds how many organizations scan at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithScanTimeout bounds each organization's scan.
func WithScanTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.scanTimeout = d
		}
	}
}

// WithClock overrides time.Now for the scan timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(orgs OrganizationLister, scanner Scanner, opts ...Option) (*Scheduler, error) {
	if orgs == nil {
		return nil, errors.New("organization lister is required")
	}
	if scanner == nil {
		return nil, errors.New("scanner is required")
	}
	s := &Scheduler{
		orgs:        orgs,
		scanner:     scanner,
		logger:      slog.Default(),
		concurrency: 4,
		scanTimeout: time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the pass under schedule (standard five-field cron or a
// descriptor such as @daily) and starts the cron runner. ctx bounds every
// scheduled pass.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.ScanAll(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled compliance pass failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule compliance scans: %w", err)
	}
	s.cron = c
	c.Start()
	s.logger.InfoContext(ctx, "compliance scan scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the cron runner and returns a context that is done once any
// running pass has finished.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// ScanAll scans every organization once. Individual failures are logged and
// counted; only failing to list organizations or ctx cancellation returns an
// error.
func (s *Scheduler) ScanAll(ctx context.Context) (Summary, error) {
	orgIDs, err := s.orgs.ListIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list organizations: %w", err)
	}

	passID := uuid.NewString()
	startedAt := s.now()
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, orgID := range orgIDs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			scanCtx, cancel := context.WithTimeout(gctx, s.scanTimeout)
			defer cancel()
			scanCtx = requestcontext.WithRequestID(scanCtx, "scheduled-"+passID)
			scanCtx = requestcontext.WithTime(scanCtx, s.now())

			if _, err := s.scanner.Run(scanCtx, orgID); err != nil {
				failed.Add(1)
				s.logger.WarnContext(scanCtx, "scheduled scan failed",
					"organization_id", orgID.String(),
					"pass_id", passID,
					"error", err,
				)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Organizations: len(orgIDs),
		Succeeded:     int(succeeded.Load()),
		Failed:        int(failed.Load()),
	}
	s.logger.InfoContext(ctx, "compliance pass completed",
		"pass_id", passID,
		"organizations", summary.Organizations,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", s.now().Sub(startedAt),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
