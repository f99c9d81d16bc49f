package provider

import (
	"context"
	"errors"
	"time"

	"docbench/internal/domain"
)

// ErrAttemptsExhausted is returned by Job.Poll when the attempt budget runs
// out before the backend reaches a terminal status. Adapters wrap it as
// UpstreamTimeout.
var ErrAttemptsExhausted = errors.New("polling attempt budget exhausted")

// Sleeper suspends between status checks. Tests inject a recording
// implementation so polling runs without wall-clock delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock, honoring context cancellation.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckFunc performs one status check against the backend. It returns
// done=true when the job reached a successful terminal status, and a non-nil
// error when the backend reported an explicit failure.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Job tracks one submitted backend job through its polling lifecycle.
type Job struct {
	ProviderID string
	RemoteID   string
	State      domain.JobState
	Attempts   int
}

// NewJob creates a job in the Submitted state.
func NewJob(providerID, remoteID string) *Job {
	return &Job{ProviderID: providerID, RemoteID: remoteID, State: domain.JobSubmitted}
}

// Poll drives the job to a terminal state: it sleeps one interval before each
// status check, up to maxAttempts checks. A check error moves the job to
// Failed; running out of attempts moves it to TimedOut and returns
// ErrAttemptsExhausted.
func (j *Job) Poll(ctx context.Context, interval time.Duration, maxAttempts int, sleeper Sleeper, check CheckFunc) error {
	j.State = domain.JobPolling
	for j.Attempts = 1; j.Attempts <= maxAttempts; j.Attempts++ {
		if err := sleeper.Sleep(ctx, interval); err != nil {
			j.State = domain.JobFailed
			return err
		}
		done, err := check(ctx)
		if err != nil {
			j.State = domain.JobFailed
			return err
		}
		if done {
			j.State = domain.JobSucceeded
			return nil
		}
	}
	j.Attempts = maxAttempts
	j.State = domain.JobTimedOut
	return ErrAttemptsExhausted
}
