package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

const (
	defaultSchedule              = "@every 15m"
	defaultNotificationSchedule  = "@daily"
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultRunTimeout            = 2 * time.Minute
)

// Job names as they appear in logs, metrics and health details.
const (
	JobOTPs          = "otp_cleanup"
	JobAuthFlows     = "auth_flow_cleanup"
	JobSessions      = "session_cleanup"
	JobCache         = "cache_cleanup"
	JobNotifications = "notification_cleanup"
)

// OTPPurger removes passcodes that expired or were consumed before cutoff.
type OTPPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiredCleaner removes rows whose own expiry has passed.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger removes expired cache entries.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NotificationPurger removes read notifications created before cutoff.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Dependencies are the stores the cleaner sweeps. Nil entries skip their job.
type Dependencies struct {
	OTPs          OTPPurger
	AuthFlows     ExpiredCleaner
	Sessions      ExpiredCleaner
	Cache         CachePurger
	Notifications NotificationPurger
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner runs the periodic sweeps of expired passcodes, auth flows, refresh
// sessions, cache entries and old read notifications.
type Cleaner struct {
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	tracker   *monitoring.JobTracker
	timeout   time.Duration
	schedule  string
	retention time.Duration
	jobs      []job
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron spec of the expiry sweeps.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithNotificationRetention sets how long read notifications are kept.
func WithNotificationRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithTracker records job outcomes in tracker instead of the default one.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		if tracker != nil {
			cleaner.tracker = tracker
		}
	}
}

// NewCleaner constructs a Cleaner for deps.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		now:       time.Now,
		log:       logger.WithModule("maintenance"),
		tracker:   monitoring.DefaultJobs(),
		timeout:   defaultRunTimeout,
		schedule:  defaultSchedule,
		retention: defaultNotificationRetention,
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if deps.OTPs != nil {
		cleaner.jobs = append(cleaner.jobs, job{JobOTPs, cleaner.schedule, func(ctx context.Context, now time.Time) (int64, error) {
			return deps.OTPs.PurgeExpired(ctx, now)
		}})
	}
	if deps.AuthFlows != nil {
		cleaner.jobs = append(cleaner.jobs, job{JobAuthFlows, cleaner.schedule, func(ctx context.Context, _ time.Time) (int64, error) {
			return deps.AuthFlows.CleanupExpired(ctx)
		}})
	}
	if deps.Sessions != nil {
		cleaner.jobs = append(cleaner.jobs, job{JobSessions, cleaner.schedule, func(ctx context.Context, _ time.Time) (int64, error) {
			return deps.Sessions.CleanupExpired(ctx)
		}})
	}
	if deps.Cache != nil {
		cleaner.jobs = append(cleaner.jobs, job{JobCache, cleaner.schedule, func(ctx context.Context, _ time.Time) (int64, error) {
			return deps.Cache.PurgeExpired(ctx)
		}})
	}
	if deps.Notifications != nil {
		cleaner.jobs = append(cleaner.jobs, job{JobNotifications, defaultNotificationSchedule, func(ctx context.Context, now time.Time) (int64, error) {
			return deps.Notifications.PurgeRead(ctx, now.Add(-cleaner.retention))
		}})
	}
	return cleaner
}

// Start registers every job with the scheduler and starts it.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}
	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			_ = c.execute(ctx, j)
		}); err != nil {
			return err
		}
	}
	c.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially and returns all failures combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx, c.now().UTC())
	c.tracker.Record(j.name, err, time.Since(start))
	if err != nil {
		c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	if removed > 0 {
		metrics.MaintenanceRemoved.WithLabelValues(j.name).Add(float64(removed))
		c.log.Debug("cleanup finished", zap.String("job", j.name), zap.Int64("removed", removed))
	}
	return nil
}
