// bedjet-scan discovers nearby BedJet units and prints their addresses
// for use in the bedjetd config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
	"github.com/jcrd/bedjetd/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	flag.Parse()

	adapter := ble.NewNativeAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable BLE adapter: %v", err)
	}

	fmt.Printf("Scanning for BedJet devices (%s)...\n", *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, protocol.ServiceUUID)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found. Make sure the BedJet is powered on and not connected to another app.")
		return
	}

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %s  %s  RSSI %d\n", d.Address, name, d.RSSI)
	}
	fmt.Printf("\nPut the address in ~/.config/bedjetd/config.yaml under device.address.\n")
}
