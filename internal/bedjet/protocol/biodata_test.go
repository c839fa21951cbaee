package protocol

import (
	"errors"
	"testing"
)

// bioName pads a name to the fixed 16-byte record width.
func bioName(s string) []byte {
	rec := make([]byte, bioNameLen)
	copy(rec, s)
	return rec
}

func TestDecodeBioDataDeviceName(t *testing.T) {
	data := append([]byte{byte(BioDeviceName), 0x00}, []byte("BedJet 3\x00\x00\x00")...)
	bd, err := DecodeBioData(data)
	if err != nil {
		t.Fatalf("DecodeBioData() error = %v", err)
	}
	if bd.DeviceName != "BedJet 3" {
		t.Errorf("DeviceName = %q, want %q", bd.DeviceName, "BedJet 3")
	}
}

func TestDecodeBioDataMemoryNames(t *testing.T) {
	data := []byte{byte(BioMemoryNames), 0x01}
	data = append(data, bioName("Warm Feet")...)
	data = append(data, 0x00) // factory default slot
	data = append(data, bioName("")[1:]...)
	data = append(data, 0x01) // empty slot
	data = append(data, bioName("")[1:]...)

	bd, err := DecodeBioData(data)
	if err != nil {
		t.Fatalf("DecodeBioData() error = %v", err)
	}
	want := []string{"Warm Feet", "Default", ""}
	if len(bd.Names) != len(want) {
		t.Fatalf("Names = %q, want %q", bd.Names, want)
	}
	for i := range want {
		if bd.Names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, bd.Names[i], want[i])
		}
	}
	if bd.Tag != 1 {
		t.Errorf("Tag = %d, want 1", bd.Tag)
	}
}

func TestDecodeBioDataFirmware(t *testing.T) {
	data := append([]byte{byte(BioFirmwareVersions), 0x00}, bioName("3.01.12")...)
	bd, err := DecodeBioData(data)
	if err != nil {
		t.Fatalf("DecodeBioData() error = %v", err)
	}
	if len(bd.Names) != 1 || bd.Names[0] != "3.01.12" {
		t.Errorf("Names = %q, want [3.01.12]", bd.Names)
	}
}

func TestDecodeBioDataErrors(t *testing.T) {
	if _, err := DecodeBioData([]byte{0x00}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("short bio data error = %v, want ErrMalformedFrame", err)
	}
	if _, err := DecodeBioData([]byte{0x7e, 0x00, 0x00}); !errors.Is(err, ErrUnsupportedFrame) {
		t.Errorf("unknown bio request error = %v, want ErrUnsupportedFrame", err)
	}
}
