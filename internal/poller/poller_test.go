package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/aird/internal/device"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Pull(ctx context.Context, ids []string) ([]device.Report, error) {
	args := m.Called(ctx, ids)
	reports, _ := args.Get(0).([]device.Report)
	return reports, args.Error(1)
}

type fakeTarget struct {
	mu      sync.Mutex
	applied [][]device.Report
}

func (f *fakeTarget) IDs() []string { return []string{"hum1"} }

func (f *fakeTarget) Apply(reports []device.Report) {
	f.mu.Lock()
	f.applied = append(f.applied, reports)
	f.mu.Unlock()
}

func (f *fakeTarget) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var report = device.Report{ID: "hum1", Delta: device.Delta{Sensors: device.Sensors{device.SensorHumidity: 40}}}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(nil, &fakeTarget{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestPoll_AppliesReports(t *testing.T) {
	src := &mockSource{}
	src.On("Pull", mock.Anything, []string{"hum1"}).Return([]device.Report{report}, nil)
	target := &fakeTarget{}

	var results []Result
	p, err := New(src, target, DefaultConfig(), WithObserver(func(r Result) { results = append(results, r) }))
	require.NoError(t, err)

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, 1, target.count())
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Reports)
	src.AssertExpectations(t)
}

func TestPoll_BackoffGrowsAndResets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &mockSource{}
	boom := errors.New("cloud unavailable")
	src.On("Pull", mock.Anything, mock.Anything).Return(nil, boom).Times(4)
	src.On("Pull", mock.Anything, mock.Anything).Return([]device.Report{report}, nil)

	p, err := New(src, &fakeTarget{}, Config{
		Interval:   time.Second,
		MinBackoff: 10 * time.Second,
		MaxBackoff: 30 * time.Second,
		Multiplier: 2,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		assert.ErrorIs(t, p.Poll(context.Background()), boom)
		backoff, failures := p.Backoff()
		assert.Equal(t, w, backoff, "failure %d", i+1)
		assert.Equal(t, i+1, failures)
	}

	require.NoError(t, p.Poll(context.Background()))
	backoff, failures := p.Backoff()
	assert.Zero(t, backoff)
	assert.Zero(t, failures)
}

func TestTick_SkipsDuringBackoff(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &mockSource{}
	src.On("Pull", mock.Anything, mock.Anything).Return(nil, errors.New("down")).Once()
	src.On("Pull", mock.Anything, mock.Anything).Return([]device.Report{report}, nil)
	target := &fakeTarget{}

	p, err := New(src, target, Config{Interval: time.Second, MinBackoff: time.Minute, MaxBackoff: time.Minute, Multiplier: 2}, WithClock(clock.Now))
	require.NoError(t, err)

	p.tick()
	p.tick()
	clock.Advance(30 * time.Second)
	p.tick()
	src.AssertNumberOfCalls(t, "Pull", 1)

	clock.Advance(31 * time.Second)
	p.tick()
	src.AssertNumberOfCalls(t, "Pull", 2)
	assert.Equal(t, 1, target.count())
}

func TestStart_RunsImmediately(t *testing.T) {
	src := &mockSource{}
	src.On("Pull", mock.Anything, mock.Anything).Return([]device.Report{report}, nil)
	target := &fakeTarget{}

	p, err := New(src, target, Config{Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Stop() }()

	require.Eventually(t, func() bool { return target.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
