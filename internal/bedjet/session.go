package bedjet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
	"github.com/jcrd/bedjetd/internal/ble"
)

// SessionState is the connection session's lifecycle state.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateSubscribing
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session-level errors. All of them end the session; recovery is the
// supervisor's job, never the session's.
var (
	ErrConnect               = errors.New("bedjet: connect failed")
	ErrSubscribe             = errors.New("bedjet: subscribe failed")
	ErrWrite                 = errors.New("bedjet: write failed")
	ErrTransportDisconnected = errors.New("bedjet: transport disconnected")
)

// SessionConfig bounds every network operation a session performs.
type SessionConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	SubscribeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c *SessionConfig) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// notifyBuffer bounds notification delivery between the transport callback
// and the processing loop. The device heartbeats about once a second, so
// overflow only happens when processing has stalled; newer frames are then
// dropped with a warning rather than blocking the transport thread.
const notifyBuffer = 16

// Session owns one BLE connection for its whole lifetime: it connects,
// subscribes to status notifications, feeds decoded frames to the state
// model and drains the command queue onto the command characteristic, one
// write at a time. A transport error ends the session; it never reconnects
// itself.
type Session struct {
	cfg     SessionConfig
	adapter ble.Adapter
	state   *StateModel
	queue   *Queue
	obs     Observer
	log     *slog.Logger

	st        atomic.Int32
	everReady atomic.Bool

	notifyCh chan []byte
	dropOnce sync.Once
	dropCh   chan struct{}
	failCh   chan error
}

// NewSession creates a session. Run must be called to start it.
func NewSession(cfg SessionConfig, adapter ble.Adapter, state *StateModel, queue *Queue, obs Observer) *Session {
	cfg.withDefaults()
	if obs == nil {
		obs = NopObserver{}
	}
	return &Session{
		cfg:      cfg,
		adapter:  adapter,
		state:    state,
		queue:    queue,
		obs:      obs,
		log:      slog.Default().With("addr", cfg.Address),
		notifyCh: make(chan []byte, notifyBuffer),
		dropCh:   make(chan struct{}),
		failCh:   make(chan error, 1),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.st.Load())
}

// ReachedReady reports whether the session ever made it to Ready. The
// supervisor uses it to reset its backoff.
func (s *Session) ReachedReady() bool {
	return s.everReady.Load()
}

func (s *Session) setState(st SessionState) {
	s.st.Store(int32(st))
}

// Run drives the session until the context is cancelled (graceful close,
// returns nil) or a transport error occurs (returns the session error).
// Either way the state model is marked disconnected before returning.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.adapter.Connect(cctx, s.cfg.Address)
	cancel()
	if err != nil {
		// The device being unreachable and the connection slot being held
		// by a competing client are indistinguishable here; both are a
		// connect failure for the supervisor to back off on.
		s.setState(StateFailed)
		s.state.MarkDisconnected()
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	conn.OnDisconnect(func() {
		s.dropOnce.Do(func() { close(s.dropCh) })
	})

	s.setState(StateSubscribing)
	statusChar, cmdChar, err := s.subscribe(ctx, conn)
	if err != nil {
		s.setState(StateFailed)
		conn.Disconnect()
		s.state.MarkDisconnected()
		return fmt.Errorf("%w: %v", ErrSubscribe, err)
	}

	s.readDeviceInfo(ctx, conn, statusChar, cmdChar)

	s.setState(StateReady)
	s.everReady.Store(true)
	s.obs.SessionReady()
	s.log.Info("[session] ready")

	wctx, wcancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(wctx, cmdChar)
	}()

	teardown := func(st SessionState) {
		s.setState(st)
		wcancel()
		<-writerDone
		s.queue.AbortInflight()
		conn.Disconnect()
		s.state.MarkDisconnected()
	}

	for {
		select {
		case <-ctx.Done():
			teardown(StateClosing)
			s.setState(StateClosed)
			s.log.Info("[session] closed")
			return nil

		case <-s.dropCh:
			teardown(StateFailed)
			s.log.Warn("[session] transport disconnected")
			return ErrTransportDisconnected

		case err := <-s.failCh:
			teardown(StateFailed)
			s.log.Warn("[session] write failed", "error", err)
			return err

		case data := <-s.notifyCh:
			s.handleNotification(data)
		}
	}
}

// subscribe discovers the status and command characteristics and enables
// notifications, all bounded by the subscribe timeout.
func (s *Session) subscribe(ctx context.Context, conn ble.Connection) (statusChar, cmdChar ble.Characteristic, err error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()

	statusChar, err = conn.DiscoverCharacteristic(sctx, protocol.ServiceUUID, protocol.StatusCharUUID)
	if err != nil {
		return nil, nil, err
	}
	cmdChar, err = conn.DiscoverCharacteristic(sctx, protocol.ServiceUUID, protocol.CommandCharUUID)
	if err != nil {
		return nil, nil, err
	}

	err = statusChar.Subscribe(func(data []byte) {
		// Copy: the transport may reuse the buffer after the callback.
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case s.notifyCh <- cp:
		default:
			s.log.Warn("[session] notification buffer full, dropping frame")
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return statusChar, cmdChar, nil
}

// handleNotification decodes one status frame and applies it. Decode
// errors are local: drop the frame, keep prior state, log. A bad frame
// must never kill the connection.
func (s *Session) handleNotification(data []byte) {
	st, err := protocol.DecodeStatus(data)
	if err == nil {
		s.state.Apply(st)
		s.obs.NotificationDecoded()
		return
	}
	if errors.Is(err, protocol.ErrUnsupportedFrame) {
		if ext, extErr := protocol.DecodeExtendedStatus(data); extErr == nil {
			s.applyExtended(ext)
			return
		}
	}
	s.obs.DecodeError(err)
	s.log.Debug("[session] dropped frame", "error", err, "len", len(data))
}

func (s *Session) applyExtended(ext protocol.ExtendedStatus) {
	info := s.state.Info()
	info.LEDsEnabled = ext.LEDsEnabled
	info.BeepsMuted = ext.BeepsMuted
	info.DualZone = ext.DualZone
	s.state.SetInfo(info)
	if ext.Notification != protocol.NotifyNone {
		s.log.Info("[session] device notification", "notification", ext.Notification.String())
	}
}

// writeLoop is the session's single writer: it drains the queue one entry
// at a time and waits for each transport write to finish before the next.
func (s *Session) writeLoop(ctx context.Context, cmdChar ble.Characteristic) {
	for {
		p, err := s.queue.DrainNext(ctx)
		if err != nil {
			return
		}

		wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		err = cmdChar.Write(wctx, p.Command().Encode())
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Torn down mid-write: completion unknown.
				s.queue.Complete(p, OutcomeUncertain)
				s.obs.CommandCompleted(OutcomeUncertain)
				return
			}
			s.queue.Complete(p, OutcomeUncertain)
			s.obs.CommandCompleted(OutcomeUncertain)
			select {
			case s.failCh <- fmt.Errorf("%w: %s: %v", ErrWrite, p.Command(), err):
			default:
			}
			return
		}

		s.queue.Complete(p, OutcomeWritten)
		s.obs.CommandCompleted(OutcomeWritten)
		s.log.Debug("[session] command written",
			"command", p.Command().String(),
			"queued", time.Since(p.Submitted()).Round(time.Millisecond))
	}
}

// readDeviceInfo fetches the slow-changing identity records: device name,
// firmware version, preset names and the extended-status flags. All reads
// are best effort; a device that answers none of them still gets a
// working session.
func (s *Session) readDeviceInfo(ctx context.Context, conn ble.Connection, statusChar, cmdChar ble.Characteristic) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()

	info := s.state.Info()

	if nameChar, err := conn.DiscoverCharacteristic(rctx, protocol.ServiceUUID, protocol.NameCharUUID); err == nil {
		if data, err := nameChar.Read(rctx); err == nil && len(data) > 0 {
			info.Name = string(bytes.TrimRight(data, "\x00"))
		}
	}

	bioChar, err := conn.DiscoverCharacteristic(rctx, protocol.ServiceUUID, protocol.BioDataCharUUID)
	if err == nil {
		requests := []struct {
			req   protocol.BioRequest
			apply func(protocol.BioData)
		}{
			{protocol.BioFirmwareVersions, func(bd protocol.BioData) {
				if len(bd.Names) > 0 {
					info.FirmwareVersion = bd.Names[0]
				}
			}},
			{protocol.BioMemoryNames, func(bd protocol.BioData) { info.MemoryNames = bd.Names }},
			{protocol.BioBiorhythmNames, func(bd protocol.BioData) { info.BiorhythmNames = bd.Names }},
		}
		for _, r := range requests {
			cmd := protocol.RequestBio{Request: r.req}
			if err := cmdChar.Write(rctx, cmd.Encode()); err != nil {
				break
			}
			data, err := bioChar.Read(rctx)
			if err != nil {
				break
			}
			if bd, err := protocol.DecodeBioData(data); err == nil && bd.Request == r.req {
				r.apply(bd)
			}
		}
	}

	// The status characteristic read returns the extended frame with the
	// device's configuration flags.
	if data, err := statusChar.Read(rctx); err == nil {
		if ext, err := protocol.DecodeExtendedStatus(data); err == nil {
			info.LEDsEnabled = ext.LEDsEnabled
			info.BeepsMuted = ext.BeepsMuted
			info.DualZone = ext.DualZone
		}
	}

	s.state.SetInfo(info)
}
