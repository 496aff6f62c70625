package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/modules/hawl"
	"github.com/mizanhq/mizan/internal/modules/wealth"
)

// DefaultUserTimeout bounds one user's evaluation inside a detection sweep.
const DefaultUserTimeout = 10 * time.Second

// Summary is the outcome of one detection sweep.
type Summary struct {
	Evaluated   int `json:"evaluated"`
	Started     int `json:"started"`
	Completable int `json:"completable"`
	BelowNisab  int `json:"below_nisab"`
	Failed      int `json:"failed"`
}

// DetectionJob sweeps all active users through the hawl engine. A single
// worker iterates users sequentially; one slow or failing user is skipped,
// never the whole sweep.
type DetectionJob struct {
	engine      *hawl.Engine
	users       wealth.UserDirectory
	userTimeout time.Duration
	running     sync.Mutex
	now         func() time.Time
	log         zerolog.Logger
}

// NewDetectionJob creates the detection job.
func NewDetectionJob(engine *hawl.Engine, users wealth.UserDirectory, userTimeout time.Duration, log zerolog.Logger) *DetectionJob {
	if userTimeout <= 0 {
		userTimeout = DefaultUserTimeout
	}
	return &DetectionJob{
		engine:      engine,
		users:       users,
		userTimeout: userTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("job", "hawl_detection").Logger(),
	}
}

// Name implements the Job interface.
func (j *DetectionJob) Name() string {
	return "hawl_detection"
}

// Run implements the Job interface.
func (j *DetectionJob) Run(ctx context.Context) error {
	_, err := j.RunOnce(ctx, j.now())
	return err
}

// SetClock overrides the time source. Used by tests.
func (j *DetectionJob) SetClock(now func() time.Time) {
	j.now = now
}

// RunOnce performs one sweep at the given instant. If a previous sweep is
// still in flight the call is skipped with a warning rather than stacking a
// second worker.
func (j *DetectionJob) RunOnce(ctx context.Context, now time.Time) (*Summary, error) {
	if !j.running.TryLock() {
		j.log.Warn().Msg("Previous detection sweep still running, skipping")
		return &Summary{}, nil
	}
	defer j.running.Unlock()

	started := time.Now()

	userIDs, err := j.users.ActiveUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			j.log.Warn().Err(ctx.Err()).Msg("Detection sweep cancelled")
			break
		}

		summary.Evaluated++
		if err := j.evaluateUser(ctx, now, userID, summary); err != nil {
			summary.Failed++
			j.log.Error().Err(err).Str("user_id", userID).Msg("User evaluation failed, skipping")
		}
	}

	j.log.Info().
		Int("evaluated", summary.Evaluated).
		Int("started", summary.Started).
		Int("completable", summary.Completable).
		Int("below_nisab", summary.BelowNisab).
		Int("failed", summary.Failed).
		Dur("took", time.Since(started)).
		Msg("Detection sweep finished")

	return summary, nil
}

func (j *DetectionJob) evaluateUser(ctx context.Context, now time.Time, userID string, summary *Summary) error {
	userCtx, cancel := context.WithTimeout(ctx, j.userTimeout)
	defer cancel()

	decision, err := j.engine.Evaluate(userCtx, now, userID)
	if err != nil {
		return err
	}

	switch decision.Action {
	case hawl.ActionStarted:
		summary.Started++
	case hawl.ActionCompletable:
		summary.Completable++
	}
	if decision.BelowNisab {
		summary.BelowNisab++
	}

	return nil
}
