// Package state owns the authoritative snapshot of one appliance and
// serializes every mutation of it through a merge queue.
//
// Producers call RequestMerge from any goroutine. Deltas are folded into a
// pending buffer; whoever holds the appliance lock swaps the buffer out,
// applies it and notifies subscribers once per cycle. A producer that finds
// the lock taken returns immediately: the holder re-checks the buffer after
// releasing the lock, so the delta is consumed by a later cycle.
package state

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/aqi"
	"github.com/dokzlo13/aird/internal/device"
)

// Change describes one applied merge cycle.
type Change struct {
	DeviceID string
	Cycle    uint64
	At       time.Time

	// Keys and Sensors list what the cycle actually changed, sorted.
	// Sensors includes device.SensorAQI when the index was recomputed.
	Keys    []device.Key
	Sensors []device.Sensor

	// Applied holds the changed values.
	Applied device.Delta

	// Snapshot is the full view right after the mutation.
	Snapshot device.Snapshot
}

// Listener receives one Change per non-empty merge cycle. Listeners run while
// the appliance lock is held, so they see changes in order; they must not
// block or acquire the appliance (RequestMerge is fine, Acquire deadlocks).
type Listener func(Change)

// Store holds one appliance snapshot and its merge queue.
type Store struct {
	id   string
	lock *Lock

	bufMu   sync.Mutex
	pending device.Delta

	snapMu sync.RWMutex
	snap   device.Snapshot

	subMu   sync.RWMutex
	subs    map[int]Listener
	nextSub int

	cycles atomic.Uint64
	now    func() time.Time
}

// New creates a Store seeded with an initial snapshot. The AQI is derived
// from the seed when any pollutant reading is present.
func New(id string, initial device.Snapshot) *Store {
	snap := initial.Clone()
	delete(snap.Sensors, device.SensorAQI)
	if idx, ok := aqi.Calculate(snap.Sensors); ok {
		snap.Sensors[device.SensorAQI] = float64(idx)
	}

	return &Store{
		id:   id,
		lock: NewLock(),
		snap: snap,
		subs: make(map[int]Listener),
		now:  time.Now,
	}
}

// ID returns the appliance id.
func (s *Store) ID() string { return s.id }

// Snapshot returns a copy of the current view. It never waits for the
// appliance lock, so it is safe to call while a command is in flight.
func (s *Store) Snapshot() device.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.Clone()
}

// Cycles returns the number of non-empty merge cycles applied so far.
func (s *Store) Cycles() uint64 { return s.cycles.Load() }

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// RequestMerge queues delta and runs merge cycles if the lock is free.
// It never blocks on an in-flight cycle or command.
func (s *Store) RequestMerge(delta device.Delta) {
	if delta.IsEmpty() {
		return
	}
	s.enqueue(delta)
	s.drain()
}

// Acquire blocks until the appliance lock is held. While the returned Session
// is open, RequestMerge calls only queue; they are applied on Release.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	if err := s.lock.Lock(ctx); err != nil {
		return nil, err
	}
	return &Session{store: s}, nil
}

func (s *Store) enqueue(delta device.Delta) {
	s.bufMu.Lock()
	s.pending.Fold(delta)
	s.bufMu.Unlock()
}

func (s *Store) hasPending() bool {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return !s.pending.IsEmpty()
}

// drain runs cycles until the buffer is empty or another goroutine owns the lock.
func (s *Store) drain() {
	for {
		if !s.lock.TryLock() {
			// The holder re-checks the buffer after it unlocks.
			return
		}
		s.cycle()
		s.lock.Unlock()

		if !s.hasPending() {
			return
		}
	}
}

// cycle applies the pending buffer. The caller must hold the lock.
func (s *Store) cycle() (Change, bool) {
	s.bufMu.Lock()
	batch := s.pending
	s.pending = device.Delta{}
	s.bufMu.Unlock()

	if batch.IsEmpty() {
		return Change{}, false
	}

	var applied device.Delta

	s.snapMu.Lock()
	for k, v := range batch.State {
		if cur, ok := s.snap.State[k]; ok && cur.Equal(v) {
			continue
		}
		if s.snap.State == nil {
			s.snap.State = make(device.State)
		}
		s.snap.State[k] = v
		if applied.State == nil {
			applied.State = make(device.State)
		}
		applied.State[k] = v
	}
	for name, v := range batch.Sensors {
		if name == device.SensorAQI {
			continue
		}
		if cur, ok := s.snap.Sensors[name]; ok && cur == v {
			continue
		}
		if s.snap.Sensors == nil {
			s.snap.Sensors = make(device.Sensors)
		}
		s.snap.Sensors[name] = v
		if applied.Sensors == nil {
			applied.Sensors = make(device.Sensors)
		}
		applied.Sensors[name] = v
	}
	if aqi.Touches(applied.Sensors) {
		if idx, ok := aqi.Calculate(s.snap.Sensors); ok {
			s.snap.Sensors[device.SensorAQI] = float64(idx)
			applied.Sensors[device.SensorAQI] = float64(idx)
		}
	}

	if applied.IsEmpty() {
		s.snapMu.Unlock()
		log.Debug().Str("device", s.id).Msg("Merge cycle changed nothing")
		return Change{}, false
	}
	snapshot := s.snap.Clone()
	s.snapMu.Unlock()

	change := Change{
		DeviceID: s.id,
		Cycle:    s.cycles.Add(1),
		At:       s.now(),
		Keys:     sortedKeys(applied.State),
		Sensors:  sortedSensors(applied.Sensors),
		Applied:  applied,
		Snapshot: snapshot,
	}

	log.Debug().
		Str("device", s.id).
		Uint64("cycle", change.Cycle).
		Int("keys", len(change.Keys)).
		Int("sensors", len(change.Sensors)).
		Msg("Merge cycle applied")

	s.notify(change)
	return change, true
}

func (s *Store) notify(change Change) {
	s.subMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("device", s.id).
						Msg("Change listener panicked")
				}
			}()
			fn(change)
		}()
	}
}

func sortedKeys(m device.State) []device.Key {
	keys := make([]device.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedSensors(m device.Sensors) []device.Sensor {
	names := make([]device.Sensor, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Session is exclusive ownership of the appliance lock.
type Session struct {
	store    *Store
	released bool
}

// Snapshot returns the current view. Nothing else can mutate it while the
// session is open.
func (ss *Session) Snapshot() device.Snapshot {
	return ss.store.Snapshot()
}

// Merge queues delta and runs one cycle under the held lock. Deltas queued
// by other producers since the last cycle are applied in the same cycle,
// with delta taking precedence for keys both touch.
func (ss *Session) Merge(delta device.Delta) (Change, bool) {
	if ss.released {
		panic("state: merge on released session")
	}
	ss.store.enqueue(delta)
	return ss.store.cycle()
}

// Release unlocks the appliance and applies anything queued meanwhile.
// Calling Release more than once is a no-op.
func (ss *Session) Release() {
	if ss.released {
		return
	}
	ss.released = true
	ss.store.lock.Unlock()
	if ss.store.hasPending() {
		ss.store.drain()
	}
}
