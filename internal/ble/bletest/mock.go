// Package bletest provides an in-memory Adapter implementation for tests.
// It simulates notifications, characteristic reads and unexpected
// disconnects without touching a real Bluetooth stack.
package bletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcrd/bedjetd/internal/ble"
)

// Characteristic records writes and lets tests push notifications.
type Characteristic struct {
	mu       sync.Mutex
	value    []byte
	writes   [][]byte
	callback func([]byte)

	// WriteErr, when set, is returned from every Write.
	WriteErr error
}

func (c *Characteristic) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, nil
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

// SetValue sets the value returned by Read.
func (c *Characteristic) SetValue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), data...)
}

// Writes returns a copy of all recorded writes.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// SimulateNotification delivers a notification to the subscriber, if any.
func (c *Characteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// Subscribed reports whether a notification callback is registered.
func (c *Characteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// Connection simulates a BLE connection with a fixed characteristic set.
type Connection struct {
	mu           sync.Mutex
	chars        map[string]*Characteristic // keyed by characteristic UUID
	disconnectCb func()
	disconnected bool
}

// NewConnection creates a connection exposing the given characteristic
// UUIDs.
func NewConnection(charUUIDs ...string) *Connection {
	chars := make(map[string]*Characteristic, len(charUUIDs))
	for _, uuid := range charUUIDs {
		chars[uuid] = &Characteristic{}
	}
	return &Connection{chars: chars}
}

func (c *Connection) DiscoverCharacteristic(ctx context.Context, serviceUUID, charUUID string) (ble.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	char, ok := c.chars[charUUID]
	if !ok {
		return nil, fmt.Errorf("bletest: unknown characteristic UUID %q", charUUID)
	}
	return char, nil
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// Char returns the mock characteristic for a UUID, or nil.
func (c *Connection) Char(uuid string) *Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chars[uuid]
}

// Disconnected reports whether Disconnect was called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// SimulateDisconnect fires the registered disconnect callback, mimicking a
// transport-level drop (or the connection slot being seized by another
// client).
func (c *Connection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.disconnected = true
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Adapter simulates the BLE adapter. Each Connect call produces a fresh
// Connection exposing CharUUIDs.
type Adapter struct {
	// CharUUIDs are the characteristics every new connection exposes.
	CharUUIDs []string

	// ConnectErr, when set, makes Connect fail. Tests flip it to simulate
	// the device being unreachable or held by a competing client.
	mu          sync.Mutex
	connectErr  error
	devices     []ble.Device
	connection  *Connection
	connects    int
	onNewConn   func(*Connection)
	valueByUUID map[string][]byte
}

// NewAdapter creates a mock adapter whose connections expose the given
// characteristic UUIDs.
func NewAdapter(charUUIDs ...string) *Adapter {
	return &Adapter{CharUUIDs: charUUIDs}
}

func (a *Adapter) Enable() error { return nil }

func (a *Adapter) Scan(_ context.Context, _ string) ([]ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.devices, nil
}

func (a *Adapter) Connect(ctx context.Context, _ string) (ble.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.connectErr != nil {
		a.connects++
		err := a.connectErr
		a.mu.Unlock()
		return nil, err
	}
	conn := NewConnection(a.CharUUIDs...)
	for uuid, val := range a.valueByUUID {
		if char := conn.chars[uuid]; char != nil {
			char.SetValue(val)
		}
	}
	a.connection = conn
	a.connects++
	hook := a.onNewConn
	a.mu.Unlock()
	if hook != nil {
		hook(conn)
	}
	return conn, nil
}

// SetDevices sets the scan results.
func (a *Adapter) SetDevices(devices []ble.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = devices
}

// SetConnectErr makes subsequent Connect calls fail with err (nil clears).
func (a *Adapter) SetConnectErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectErr = err
}

// SetCharValue preloads the Read value of a characteristic on future
// connections.
func (a *Adapter) SetCharValue(uuid string, value []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.valueByUUID == nil {
		a.valueByUUID = make(map[string][]byte)
	}
	a.valueByUUID[uuid] = append([]byte(nil), value...)
}

// OnNewConnection registers a hook called with each connection Connect
// creates.
func (a *Adapter) OnNewConnection(hook func(*Connection)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onNewConn = hook
}

// LatestConnection returns the most recently created connection.
func (a *Adapter) LatestConnection() *Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

// Connects returns how many Connect calls the adapter has seen.
func (a *Adapter) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Compile-time interface checks.
var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Connection     = (*Connection)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)
