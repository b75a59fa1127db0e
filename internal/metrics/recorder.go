// Package metrics exposes engine counters. Components take a Recorder so
// metrics stay optional; NoopRecorder is used when they are disabled.
package metrics

import "time"

// Recorder defines observability hooks for the engine.
type Recorder interface {
	IncMergeCycle(device string)
	ObserveCommand(device, key, origin, outcome string, latency time.Duration)
	IncAutoAdjust(device, direction string)
	ObservePoll(d time.Duration, err error)
	SetAQI(device string, idx int)
	SetHumidity(device string, v float64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncMergeCycle(string) {}
func (NoopRecorder) ObserveCommand(string, string, string, string, time.Duration) {}
func (NoopRecorder) IncAutoAdjust(string, string) {}
func (NoopRecorder) ObservePoll(time.Duration, error) {}
func (NoopRecorder) SetAQI(string, int) {}
func (NoopRecorder) SetHumidity(string, float64) {}
