package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStatus replays statuses in order, repeating the last one.
type scriptedStatus struct {
	mu       sync.Mutex
	statuses []model.WorkflowStatus
	err      error
	calls    int
}

func (s *scriptedStatus) GetStatus(ctx context.Context, url string) (model.WorkflowStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return model.WorkflowStatus{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

var (
	running   = model.WorkflowStatus{Status: "RUNNING"}
	completed = model.WorkflowStatus{IsFinalStatus: true, Status: model.StatusCompleted}
)

func fastPoll() PollOptions {
	return PollOptions{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 1, MaxWait: time.Second}
}

func TestPollOptions_Defaults(t *testing.T) {
	o := PollOptions{}.withDefaults()
	assert.Equal(t, DefaultPollOptions(), o)

	o = PollOptions{Interval: time.Minute, MaxInterval: time.Second, Multiplier: 0.5}.withDefaults()
	assert.Equal(t, time.Minute, o.MaxInterval)
	assert.Equal(t, 1.0, o.Multiplier)
}

func TestPollOptions_Backoff(t *testing.T) {
	o := PollOptions{Interval: time.Second, MaxInterval: 5 * time.Second, Multiplier: 2}.withDefaults()

	d := o.Interval
	var seen []time.Duration
	for i := 0; i < 4; i++ {
		d = o.next(d)
		seen = append(seen, d)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, seen)
}

func TestWait_UntilCompleted(t *testing.T) {
	api := &scriptedStatus{statuses: []model.WorkflowStatus{running, running, completed}}
	p := NewPoller(api, fastPoll(), nil)

	polls := 0
	p.OnPoll = func(model.WorkflowStatus) { polls++ }

	st, err := p.Wait(context.Background(), "http://sb/status")
	require.NoError(t, err)
	assert.True(t, st.Succeeded())
	assert.Equal(t, 3, api.calls)
	assert.Equal(t, 2, polls)
}

func TestWait_TerminalFailureIsNotAnError(t *testing.T) {
	api := &scriptedStatus{statuses: []model.WorkflowStatus{{IsFinalStatus: true, Status: "ERROR"}}}

	st, err := NewPoller(api, fastPoll(), nil).Wait(context.Background(), "u")
	require.NoError(t, err)
	assert.False(t, st.Succeeded())
	assert.Equal(t, "ERROR", st.Status)
}

func TestWait_Timeout(t *testing.T) {
	api := &scriptedStatus{statuses: []model.WorkflowStatus{running}}
	opts := fastPoll()
	opts.MaxWait = 20 * time.Millisecond

	_, err := NewPoller(api, opts, nil).Wait(context.Background(), "u")
	require.ErrorIs(t, err, ErrPublishTimeout)
	assert.Contains(t, err.Error(), "RUNNING")
}

func TestWait_Interrupt(t *testing.T) {
	api := &scriptedStatus{statuses: []model.WorkflowStatus{running}}
	interrupts := make(chan struct{}, 1)
	opts := fastPoll()
	opts.Interval = time.Hour

	p := NewPoller(api, opts, interrupts)
	p.OnPoll = func(model.WorkflowStatus) { interrupts <- struct{}{} }

	_, err := p.Wait(context.Background(), "u")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1, api.calls)
}

func TestWait_ContextCancelled(t *testing.T) {
	api := &scriptedStatus{statuses: []model.WorkflowStatus{running}}
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastPoll()
	opts.Interval = time.Hour

	p := NewPoller(api, opts, nil)
	p.OnPoll = func(model.WorkflowStatus) { cancel() }

	_, err := p.Wait(ctx, "u")
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestWait_StatusError(t *testing.T) {
	api := &scriptedStatus{err: errors.New("HTTP 500")}

	_, err := NewPoller(api, fastPoll(), nil).Wait(context.Background(), "u")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInterrupted)
	assert.Contains(t, err.Error(), "HTTP 500")
}
