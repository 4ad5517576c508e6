package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dealflow/internal/logging"
)

// Jobs runs the scheduled snapshot and report summaries.
type Jobs struct {
	service *Service
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewJobs registers the snapshot and report jobs from configuration.
// Schedules are standard five-field cron expressions evaluated in UTC.
func NewJobs(service *Service, logger *slog.Logger) (*Jobs, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	j := &Jobs{
		service: service,
		cron:    c,
		logger:  logging.NewComponentLogger(logger, "analytics-jobs"),
		ctx:     ctx,
		cancel:  cancel,
	}

	cfg := service.cfg.Analytics
	if _, err := c.AddFunc(cfg.SnapshotSchedule, j.RunSnapshot); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule snapshot %q: %w", cfg.SnapshotSchedule, err)
	}
	if _, err := c.AddFunc(cfg.ReportSchedule, j.RunReport); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule report %q: %w", cfg.ReportSchedule, err)
	}
	return j, nil
}

// Start begins running jobs in the background.
func (j *Jobs) Start() {
	j.cron.Start()
	j.logger.Info("analytics jobs started", logging.Int("jobs", len(j.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (j *Jobs) Stop() {
	j.cancel()
	<-j.cron.Stop().Done()
	j.logger.Info("analytics jobs stopped")
}

// RunSnapshot writes today's daily stats.
func (j *Jobs) RunSnapshot() {
	stats, err := j.service.Snapshot(j.ctx, j.service.now())
	if err != nil {
		logging.ErrorWithContext(j.logger, "daily snapshot failed", "snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `dealflow stats snapshot` once the database is reachable"),
		)
		return
	}
	j.logger.Info("daily snapshot written",
		logging.String("date", stats.Date),
		logging.Int("products_processed", stats.ProductsProcessed),
		logging.Int("posts_created", stats.PostsCreated),
		logging.Int64("total_clicks", stats.TotalClicks),
		logging.Float64("total_earnings", stats.TotalEarnings),
	)
}

// RunReport logs the configured rollup window.
func (j *Jobs) RunReport() {
	report, err := j.service.Rollup(j.ctx, 0, 0)
	if err != nil {
		logging.ErrorWithContext(j.logger, "report rollup failed", "report_failed", logging.Error(err))
		return
	}
	for _, p := range report.Platforms {
		j.logger.Info("performance summary",
			logging.String(logging.FieldPlatform, p.Platform),
			logging.Int("links", p.Links),
			logging.Int64("clicks", p.Clicks),
			logging.Int64("conversions", p.Conversions),
			logging.Float64("earnings", p.Earnings),
			logging.Float64("conversion_rate", p.ConversionRate),
		)
	}
	j.logger.Info("performance totals",
		logging.Int("window_days", report.WindowDays),
		logging.Int64("clicks", report.Totals.Clicks),
		logging.Float64("earnings", report.Totals.Earnings),
	)
}
