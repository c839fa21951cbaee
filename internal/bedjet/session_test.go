package bedjet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
	"github.com/jcrd/bedjetd/internal/ble/bletest"
)

// statusFrame builds a valid status frame with the given temperature and
// sequence number.
func statusFrame(seq uint8, currentTemp float64) []byte {
	f := make([]byte, 20)
	f[0] = 0x00 // status frame
	f[1] = seq
	f[4] = 1 // 1h remaining
	f[7] = byte(currentTemp * 2)
	f[8] = 61   // target 30.5C
	f[9] = 0x01 // heat
	f[10] = 9   // fan 50%
	return f
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Address:          "AA:BB:CC:DD:EE:FF",
		ConnectTimeout:   time.Second,
		SubscribeTimeout: time.Second,
		WriteTimeout:     time.Second,
	}
}

// newTestAdapter exposes only the status and command characteristics; the
// optional identity reads fail and the session proceeds without them.
func newTestAdapter() *bletest.Adapter {
	return bletest.NewAdapter(protocol.StatusCharUUID, protocol.CommandCharUUID)
}

// startSession runs a session in the background and waits for Ready.
func startSession(t *testing.T, adapter *bletest.Adapter, state *StateModel, queue *Queue) (*Session, context.CancelFunc, <-chan error) {
	t.Helper()
	sess := NewSession(testSessionConfig(), adapter, state, queue, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx) }()

	waitFor(t, func() bool { return sess.State() == StateReady }, "session did not reach Ready")
	return sess, cancel, errCh
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionNotificationsUpdateState(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()
	_, cancel, errCh := startSession(t, adapter, state, queue)
	defer cancel()

	status := adapter.LatestConnection().Char(protocol.StatusCharUUID)
	if !status.Subscribed() {
		t.Fatal("session did not subscribe to status notifications")
	}

	base := state.Current().Version
	status.SimulateNotification(statusFrame(1, 26))
	status.SimulateNotification(statusFrame(2, 27))
	status.SimulateNotification(statusFrame(3, 28))

	waitFor(t, func() bool { return state.Current().Version == base+3 },
		"version did not advance by 3")

	s := state.Current()
	if s.Status.CurrentTemp != 28 {
		t.Errorf("CurrentTemp = %v, want 28 (the third notification)", s.Status.CurrentTemp)
	}
	if s.Status.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", s.Status.Sequence)
	}
	if !s.Connected {
		t.Error("Connected = false while session is Ready")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("graceful close returned %v, want nil", err)
	}
}

// A malformed frame is dropped without touching state or the session.
func TestSessionBadFrameDoesNotKillConnection(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()
	sess, cancel, _ := startSession(t, adapter, state, queue)
	defer cancel()

	status := adapter.LatestConnection().Char(protocol.StatusCharUUID)
	status.SimulateNotification(statusFrame(1, 25))
	waitFor(t, func() bool { return state.Current().Version == 1 }, "valid frame not applied")

	status.SimulateNotification([]byte{0x00, 0x01, 0x02}) // truncated
	status.SimulateNotification(statusFrame(2, 26))
	waitFor(t, func() bool { return state.Current().Version == 2 }, "frame after bad frame not applied")

	if sess.State() != StateReady {
		t.Errorf("session state = %v after bad frame, want ready", sess.State())
	}
	if got := state.Current().Status.CurrentTemp; got != 26 {
		t.Errorf("CurrentTemp = %v, want 26", got)
	}
}

// Extended status frames arrive on the same characteristic as the
// heartbeat; the session must route them to the device info flags, so a
// settings toggle is observable mid-session.
func TestSessionExtendedNotificationUpdatesInfo(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()
	sess, cancel, _ := startSession(t, adapter, state, queue)
	defer cancel()

	status := adapter.LatestConnection().Char(protocol.StatusCharUUID)
	status.SimulateNotification([]byte{
		0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00,
	})

	waitFor(t, func() bool {
		info := state.Info()
		return info.LEDsEnabled && info.BeepsMuted && info.DualZone
	}, "extended frame did not update device info")

	// The flags frame is not a heartbeat; it must not touch the snapshot.
	if v := state.Current().Version; v != 0 {
		t.Errorf("Version = %d after extended frame, want 0", v)
	}
	if sess.State() != StateReady {
		t.Errorf("session state = %v, want ready", sess.State())
	}
}

func TestSessionCoalescedCommandWrites(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()

	// Submit before the session drains: the second setpoint replaces the
	// first, so only it ever reaches the transport.
	first := queue.Submit(protocol.SetTemperature{Celsius: 22.0}, "setpoint")
	second := queue.Submit(protocol.SetTemperature{Celsius: 23.5}, "setpoint")

	_, cancel, _ := startSession(t, adapter, state, queue)
	defer cancel()

	waitFor(t, func() bool {
		return len(adapter.LatestConnection().Char(protocol.CommandCharUUID).Writes()) == 1
	}, "command was not written")

	writes := adapter.LatestConnection().Char(protocol.CommandCharUUID).Writes()
	want := protocol.SetTemperature{Celsius: 23.5}.Encode()
	if len(writes) != 1 || string(writes[0]) != string(want) {
		t.Errorf("writes = %#v, want exactly %#v", writes, want)
	}

	if o := <-first.Done(); o != OutcomeSuperseded {
		t.Errorf("first outcome = %v, want superseded", o)
	}
	if o := <-second.Done(); o != OutcomeWritten {
		t.Errorf("second outcome = %v, want written", o)
	}
}

func TestSessionTransportDisconnect(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()
	sess, cancel, errCh := startSession(t, adapter, state, queue)
	defer cancel()

	status := adapter.LatestConnection().Char(protocol.StatusCharUUID)
	status.SimulateNotification(statusFrame(1, 30))
	waitFor(t, func() bool { return state.Connected() }, "state not connected")

	adapter.LatestConnection().SimulateDisconnect()

	if err := <-errCh; !errors.Is(err, ErrTransportDisconnected) {
		t.Errorf("Run() error = %v, want ErrTransportDisconnected", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("session state = %v, want failed", sess.State())
	}
	if state.Connected() {
		t.Error("state still connected after transport disconnect")
	}
	if got := state.Current().Status.CurrentTemp; got != 30 {
		t.Errorf("last-known CurrentTemp = %v, want 30 (retained)", got)
	}
}

func TestSessionConnectFailure(t *testing.T) {
	adapter := newTestAdapter()
	adapter.SetConnectErr(errors.New("le connection abort"))
	state := NewStateModel()
	queue := NewQueue()

	sess := NewSession(testSessionConfig(), adapter, state, queue, nil)
	err := sess.Run(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Errorf("Run() error = %v, want ErrConnect", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("session state = %v, want failed", sess.State())
	}
	if sess.ReachedReady() {
		t.Error("ReachedReady() = true for a session that never connected")
	}
}

func TestSessionWriteErrorFailsSession(t *testing.T) {
	adapter := newTestAdapter()
	state := NewStateModel()
	queue := NewQueue()
	_, cancel, errCh := startSession(t, adapter, state, queue)
	defer cancel()

	adapter.LatestConnection().Char(protocol.CommandCharUUID).WriteErr = errors.New("att timeout")
	p := queue.Submit(protocol.SetFan{Percent: 75}, "fan")

	if err := <-errCh; !errors.Is(err, ErrWrite) {
		t.Errorf("Run() error = %v, want ErrWrite", err)
	}
	if o := <-p.Done(); o != OutcomeUncertain {
		t.Errorf("outcome = %v, want uncertain (completion unknown, never retried)", o)
	}
	if state.Connected() {
		t.Error("state still connected after write failure")
	}
}

func TestSessionReadsDeviceInfo(t *testing.T) {
	adapter := bletest.NewAdapter(
		protocol.StatusCharUUID,
		protocol.CommandCharUUID,
		protocol.NameCharUUID,
		protocol.BioDataCharUUID,
	)
	adapter.SetCharValue(protocol.NameCharUUID, []byte("Bedroom BedJet\x00\x00"))

	firmware := append([]byte{byte(protocol.BioFirmwareVersions), 0x00}, []byte("3.01.12\x00\x00\x00\x00\x00\x00\x00\x00\x00")...)
	adapter.SetCharValue(protocol.BioDataCharUUID, firmware)

	// Extended status frame: LEDs on, beeps muted.
	adapter.SetCharValue(protocol.StatusCharUUID, []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00,
	})

	state := NewStateModel()
	queue := NewQueue()
	_, cancel, _ := startSession(t, adapter, state, queue)
	defer cancel()

	info := state.Info()
	if info.Name != "Bedroom BedJet" {
		t.Errorf("Name = %q, want %q", info.Name, "Bedroom BedJet")
	}
	if info.FirmwareVersion != "3.01.12" {
		t.Errorf("FirmwareVersion = %q, want %q", info.FirmwareVersion, "3.01.12")
	}
	if !info.LEDsEnabled || !info.BeepsMuted {
		t.Errorf("flags = %+v, want LEDs enabled and beeps muted", info)
	}
}
