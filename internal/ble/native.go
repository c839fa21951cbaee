package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// NativeAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth
// on macOS, WinRT on Windows).
type NativeAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*nativeConnection // keyed by device address
}

// NewNativeAdapter creates a BLE adapter on the platform's default stack.
func NewNativeAdapter() *NativeAdapter {
	return &NativeAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*nativeConnection),
	}
}

func (a *NativeAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// Adapter-level connect/disconnect handler. tinygo/bluetooth fires this
	// with connected=false when a peripheral drops, which is how the session
	// learns the single connection slot was lost (or seized by another
	// client).
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *NativeAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err = a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(uuid) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

type connectResult struct {
	device bluetooth.Device
	err    error

	// release tears the connection down; set on success.
	release func()
}

func (a *NativeAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it so our ctx deadline also applies.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		r := connectResult{device: device, err: err}
		if err == nil {
			r.release = func() { device.Disconnect() }
		}
		ch <- r
	}()

	result, err := awaitConnect(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, err)
	}
	if result.err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
	}
	conn := &nativeConnection{device: &result.device}

	a.mu.Lock()
	a.connections[address] = conn
	a.mu.Unlock()

	return conn, nil
}

// awaitConnect waits for the attempt's result or for ctx to expire. An
// attempt that succeeds after expiry is released immediately: the device
// permits a single connection, so an abandoned link would hold the only
// slot and block every later attempt.
func awaitConnect(ctx context.Context, ch <-chan connectResult) (connectResult, error) {
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.release != nil {
				r.release()
			}
		}()
		return connectResult{}, ctx.Err()
	case result := <-ch:
		return result, nil
	}
}

// Compile-time check that NativeAdapter implements Adapter.
var _ Adapter = (*NativeAdapter)(nil)

type nativeConnection struct {
	device *bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
}

func (c *nativeConnection) DiscoverCharacteristic(ctx context.Context, serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	type discoverResult struct {
		char *bluetooth.DeviceCharacteristic
		err  error
	}
	ch := make(chan discoverResult, 1)
	go func() {
		svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
		if err != nil {
			ch <- discoverResult{nil, fmt.Errorf("ble: discover services: %w", err)}
			return
		}
		if len(svcs) == 0 {
			ch <- discoverResult{nil, fmt.Errorf("ble: service %s not found", serviceUUID)}
			return
		}
		chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
		if err != nil {
			ch <- discoverResult{nil, fmt.Errorf("ble: discover characteristics: %w", err)}
			return
		}
		if len(chars) == 0 {
			ch <- discoverResult{nil, fmt.Errorf("ble: characteristic %s not found", charUUID)}
			return
		}
		ch <- discoverResult{&chars[0], nil}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: discover %s: %w", charUUID, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, result.err
		}
		return &nativeCharacteristic{char: result.char}, nil
	}
}

func (c *nativeConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *nativeConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *nativeConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type nativeCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *nativeCharacteristic) Write(ctx context.Context, data []byte) error {
	errCh := make(chan error, 1)
	go func() {
		_, err := c.char.WriteWithoutResponse(data)
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("ble: write: %w", ctx.Err())
	case err := <-errCh:
		return err
	}
}

func (c *nativeCharacteristic) Read(ctx context.Context) ([]byte, error) {
	type readResult struct {
		data []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 512)
		n, err := c.char.Read(buf)
		ch <- readResult{buf[:n], err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: read: %w", ctx.Err())
	case result := <-ch:
		return result.data, result.err
	}
}

func (c *nativeCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}
