package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/model"
	"spot-trader/internal/notification"
	"spot-trader/internal/portfolio"
	"spot-trader/internal/stream"
)

// ReportJob builds, delivers and archives the daily report.
type ReportJob struct {
	reporter  *portfolio.Reporter
	notifier  notification.Notifier
	publisher Publisher
	quote     string
	logger    *slog.Logger
	now       func() time.Time
}

// NewReportJob creates a job. publisher may be nil.
func NewReportJob(reporter *portfolio.Reporter, notifier notification.Notifier, publisher Publisher, quote string, logger *slog.Logger) *ReportJob {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier(logger)
	}
	return &ReportJob{
		reporter:  reporter,
		notifier:  notifier,
		publisher: publisher,
		quote:     quote,
		logger:    logger.With("component", "report"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run generates the report for date. A dry run logs the report without
// sending or archiving it and leaves the ledger's matches untouched.
func (j *ReportJob) Run(ctx context.Context, date time.Time, dryRun bool) (model.DailyReport, error) {
	generate := j.reporter.GenerateDailyReport
	if dryRun {
		generate = j.reporter.PreviewDailyReport
	}
	report, err := generate(ctx, date)
	if err != nil {
		if nerr := j.notifier.Send(ctx, notification.CriticalError("report.daily", err, j.now())); nerr != nil {
			j.logger.Warn("alert delivery failed", "error", nerr)
		}
		return model.DailyReport{}, fmt.Errorf("generate report %s: %w", date.Format(model.DateLayout), err)
	}

	alert := notification.DailyReport(report, j.quote, j.now())
	if dryRun {
		j.logger.Info("dry run, report not sent", "date", date.Format(model.DateLayout),
			"title", alert.Title, "message", alert.Message)
		return report, nil
	}

	if err := j.notifier.Send(ctx, alert); err != nil {
		j.logger.Warn("report delivery failed", "error", err)
	}
	if j.publisher != nil {
		if err := j.publisher.Publish(stream.ChannelReport, report); err != nil {
			j.logger.Warn("stream publish failed", "error", err)
		}
	}
	if err := j.reporter.ArchiveReport(ctx, report); err != nil {
		return report, fmt.Errorf("archive report: %w", err)
	}
	j.logger.Info("daily report archived", "date", date.Format(model.DateLayout),
		"trades", report.Stats.TotalTrades, "pnl", report.Stats.TotalPnL)
	return report, nil
}
