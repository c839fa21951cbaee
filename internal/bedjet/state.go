// Package bedjet implements the connection core for a BedJet climate
// device: the state model consumers read, the command queue they submit
// to, the BLE connection session, and the supervisor that keeps exactly
// one session alive against a device that allows a single connection.
package bedjet

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
)

// Snapshot is an immutable view of the device state. Readers always get a
// whole snapshot; updates replace it atomically.
type Snapshot struct {
	Status    protocol.DeviceStatus
	Connected bool

	// Version increments on every accepted decode, identical payload or
	// not, so consumers can detect staleness from notification cadence.
	Version uint64

	// LastUpdate is when the current Status was decoded. Zero before the
	// first notification.
	LastUpdate time.Time
}

// DeviceInfo holds the slow-changing identity read once per connection.
type DeviceInfo struct {
	Name            string
	FirmwareVersion string
	MemoryNames     []string
	BiorhythmNames  []string
	LEDsEnabled     bool
	BeepsMuted      bool
	DualZone        bool
}

// StateModel is the single source of truth consumers read. It is safe for
// concurrent use: reads are lock-free atomic snapshot loads, writes are
// serialized internally.
type StateModel struct {
	mu   sync.Mutex // serializes writers and the subscriber list
	cur  atomic.Pointer[Snapshot]
	info atomic.Pointer[DeviceInfo]

	subs   map[int]func(Snapshot)
	nextID int

	now func() time.Time // test seam
}

// NewStateModel returns an empty, disconnected state model.
func NewStateModel() *StateModel {
	m := &StateModel{
		subs: make(map[int]func(Snapshot)),
		now:  time.Now,
	}
	m.cur.Store(&Snapshot{})
	m.info.Store(&DeviceInfo{})
	return m
}

// Apply replaces the snapshot with a newly decoded status, bumps the
// version and marks the device connected. Subscribers are notified with
// the new snapshot.
func (m *StateModel) Apply(st protocol.DeviceStatus) {
	m.mu.Lock()
	prev := m.cur.Load()
	next := &Snapshot{
		Status:     st,
		Connected:  true,
		Version:    prev.Version + 1,
		LastUpdate: m.now(),
	}
	m.cur.Store(next)
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(*next)
	}
}

// MarkDisconnected clears the connected flag. The last-known status stays
// readable: stale-but-visible beats blank.
func (m *StateModel) MarkDisconnected() {
	m.mu.Lock()
	prev := m.cur.Load()
	if !prev.Connected {
		m.mu.Unlock()
		return
	}
	next := *prev
	next.Connected = false
	m.cur.Store(&next)
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// Current returns the latest snapshot.
func (m *StateModel) Current() Snapshot {
	return *m.cur.Load()
}

// Connected reports whether a session is delivering notifications.
func (m *StateModel) Connected() bool {
	return m.cur.Load().Connected
}

// Stale reports the "connected but silent" failure mode: the link is up
// but no notification arrived within maxAge. Distinct from disconnected.
func (m *StateModel) Stale(maxAge time.Duration) bool {
	s := m.cur.Load()
	if !s.Connected || s.LastUpdate.IsZero() {
		return false
	}
	return m.now().Sub(s.LastUpdate) > maxAge
}

// SetInfo replaces the device identity record.
func (m *StateModel) SetInfo(info DeviceInfo) {
	m.info.Store(&info)
}

// Info returns the device identity record.
func (m *StateModel) Info() DeviceInfo {
	return *m.info.Load()
}

// Subscribe registers fn to run on every snapshot change. The returned
// function unregisters it. Callbacks run synchronously on the updater's
// goroutine and should be quick.
func (m *StateModel) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
