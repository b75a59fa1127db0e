package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []int
	times []time.Time
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) effect(v int) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recorder) snapshot() ([]int, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...), append([]time.Time(nil), r.times...)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	const window = 50 * time.Millisecond
	rec := newRecorder()
	d := New(window, rec.effect)
	defer d.Stop()

	var last time.Time
	for i := 1; i <= 5; i++ {
		last = time.Now()
		d.Call(i)
		time.Sleep(window / 5)
	}

	select {
	case <-rec.fired:
	case <-time.After(time.Second):
		t.Fatal("effect never fired")
	}
	// Give a stray second firing a chance to show up.
	time.Sleep(2 * window)

	calls, times := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one effect call, got %v", calls)
	}
	if calls[0] != 5 {
		t.Errorf("effect value = %d, want 5", calls[0])
	}
	if times[0].Before(last.Add(window)) {
		t.Errorf("effect fired %v after last call, want >= %v", times[0].Sub(last), window)
	}
}

func TestDebouncer_SeparateWindowsFireSeparately(t *testing.T) {
	const window = 20 * time.Millisecond
	rec := newRecorder()
	d := New(window, rec.effect)
	defer d.Stop()

	d.Call(1)
	<-rec.fired
	d.Call(2)
	<-rec.fired

	calls, _ := rec.snapshot()
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("calls = %v, want [1 2]", calls)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	const window = 20 * time.Millisecond
	rec := newRecorder()
	d := New(window, rec.effect)

	d.Call(7)
	if !d.Pending() {
		t.Error("expected pending effect")
	}
	d.Stop()
	d.Call(8)

	time.Sleep(3 * window)
	calls, _ := rec.snapshot()
	if len(calls) != 0 {
		t.Errorf("expected no effect after Stop, got %v", calls)
	}
	if d.Pending() {
		t.Error("stopped debouncer should report nothing pending")
	}
}
