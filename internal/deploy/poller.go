package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourceplane/dpfactory/internal/model"
)

var (
	// ErrPublishTimeout is returned when the workflow is still running after MaxWait.
	ErrPublishTimeout = errors.New("publish workflow did not reach a final status in time")
	// ErrInterrupted is returned when waiting was aborted by an interrupt or cancellation.
	ErrInterrupted = errors.New("interrupted")
)

// PollOptions controls how a publish workflow is awaited.
type PollOptions struct {
	Interval    time.Duration // delay before the second status request
	MaxInterval time.Duration // upper bound for the delay once backoff applies
	Multiplier  float64       // growth factor per poll; 1 keeps a fixed interval
	MaxWait     time.Duration // total wait before giving up
}

// DefaultPollOptions polls every 2 seconds for up to 30 minutes.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  1.0,
		MaxWait:     30 * time.Minute,
	}
}

func (o PollOptions) withDefaults() PollOptions {
	def := DefaultPollOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = def.MaxInterval
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	if o.Multiplier < 1 {
		o.Multiplier = 1
	}
	if o.MaxWait <= 0 {
		o.MaxWait = def.MaxWait
	}
	return o
}

func (o PollOptions) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * o.Multiplier)
	if n > o.MaxInterval {
		return o.MaxInterval
	}
	return n
}

// StatusAPI fetches the state of a publish workflow.
type StatusAPI interface {
	GetStatus(ctx context.Context, statusURL string) (model.WorkflowStatus, error)
}

// Poller waits for publish workflows to finish.
type Poller struct {
	api        StatusAPI
	opts       PollOptions
	interrupts <-chan struct{}

	// OnPoll, when set, is called with every non-final status.
	OnPoll func(model.WorkflowStatus)
}

// NewPoller creates a poller. A receive on interrupts aborts the current wait.
func NewPoller(api StatusAPI, opts PollOptions, interrupts <-chan struct{}) *Poller {
	return &Poller{api: api, opts: opts.withDefaults(), interrupts: interrupts}
}

// Wait polls statusURL until the workflow reports a final status. A final
// status other than COMPLETED is returned without error; callers check
// Succeeded.
func (p *Poller) Wait(ctx context.Context, statusURL string) (model.WorkflowStatus, error) {
	deadline := time.NewTimer(p.opts.MaxWait)
	defer deadline.Stop()

	interval := p.opts.Interval
	for {
		st, err := p.api.GetStatus(ctx, statusURL)
		if err != nil {
			if ctx.Err() != nil {
				return st, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
			}
			return st, fmt.Errorf("failed to poll publish status: %w", err)
		}
		if st.IsFinalStatus {
			return st, nil
		}
		if p.OnPoll != nil {
			p.OnPoll(st)
		}

		wait := time.NewTimer(interval)
		select {
		case <-wait.C:
		case <-deadline.C:
			wait.Stop()
			return st, fmt.Errorf("%w: still %q after %s", ErrPublishTimeout, st.Status, p.opts.MaxWait)
		case <-p.interrupts:
			wait.Stop()
			return st, ErrInterrupted
		case <-ctx.Done():
			wait.Stop()
			return st, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		interval = p.opts.next(interval)
	}
}
