// Package ble abstracts the Bluetooth Low Energy transport behind small
// interfaces so the session layer can be tested against a mock and run in
// production on tinygo.org/x/bluetooth. The device firmware permits a
// single concurrent connection; nothing at this layer enforces that, it
// simply surfaces connect failures when the slot is taken.
package ble

import "context"

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic, waiting until the
	// transport-level write completes or ctx expires.
	Write(ctx context.Context, data []byte) error
	// Read reads the characteristic's current value.
	Read(ctx context.Context) ([]byte, error)
	// Subscribe registers a callback for notifications on this
	// characteristic. The callback runs on the transport's thread and
	// must not block.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(ctx context.Context, serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID
	// until ctx is cancelled.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device at the given address.
	// On macOS the address is a CoreBluetooth UUID rather than a MAC.
	Connect(ctx context.Context, address string) (Connection, error)
}
