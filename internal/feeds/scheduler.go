package feeds

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "evstage/internal/log"
)

// Scheduler runs RefreshAll on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// Refresher is what the scheduler drives; *Service implements it.
type Refresher interface {
	RefreshAll(ctx context.Context) []Result
}

// NewScheduler parses spec (standard five-field cron) and registers the
// refresh job. Runs never overlap; a run that is still going when the next
// one is due makes that one skip.
func NewScheduler(ctx context.Context, spec string, r Refresher) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{}),
		cron.SkipIfStillRunning(cronLogger{}),
	))
	_, err := c.AddFunc(spec, func() {
		results := r.RefreshAll(ctx)
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
			}
		}
		appLog.Info("scheduled feed refresh", "feeds", len(results), "failed", failed)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
