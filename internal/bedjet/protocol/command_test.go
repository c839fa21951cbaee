package protocol

import (
	"bytes"
	"testing"
	"time"
)

func TestCommandEncodings(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"mode off", SetMode{ModeStandby}, []byte{0x01, 0x01}},
		{"mode heat", SetMode{ModeHeat}, []byte{0x01, 0x03}},
		{"mode turbo", SetMode{ModeTurbo}, []byte{0x01, 0x04}},
		{"mode extended heat", SetMode{ModeExtendedHeat}, []byte{0x01, 0x06}},
		{"mode cool", SetMode{ModeCool}, []byte{0x01, 0x02}},
		{"mode dry", SetMode{ModeDry}, []byte{0x01, 0x05}},
		{"mode wait falls back to off", SetMode{ModeWait}, []byte{0x01, 0x01}},

		{"temperature", SetTemperature{30.5}, []byte{0x03, 61}},
		{"temperature rounds", SetTemperature{28.2}, []byte{0x03, 56}},
		{"temperature clamps low", SetTemperature{-4}, []byte{0x03, 0}},
		{"temperature clamps high", SetTemperature{400}, []byte{0x03, 255}},

		{"fan 50%", SetFan{50}, []byte{0x07, 9}},
		{"fan 5%", SetFan{5}, []byte{0x07, 0}},
		{"fan 100%", SetFan{100}, []byte{0x07, 19}},
		{"fan clamps low", SetFan{0}, []byte{0x07, 0}},
		{"fan clamps high", SetFan{250}, []byte{0x07, 19}},
		{"fan rounds down to step", SetFan{52}, []byte{0x07, 9}},

		{"time", SetTime{2*time.Hour + 45*time.Minute}, []byte{0x02, 2, 45}},
		{"time zero", SetTime{0}, []byte{0x02, 0, 0}},
		{"time negative clamps", SetTime{-time.Minute}, []byte{0x02, 0, 0}},
		{"time overflow clamps", SetTime{300 * time.Hour}, []byte{0x02, 255, 59}},

		{"led on", ToggleSetting{SettingLED, true}, []byte{0x05, 0x10, 1}},
		{"beeps muted off", ToggleSetting{SettingMuteBeeps, false}, []byte{0x05, 0x01, 0}},

		{"preset m2", RecallPreset{PresetM2}, []byte{0x01, 0x21}},
		{"preset bio3", RecallPreset{PresetBio3}, []byte{0x01, 0x82}},
		{"preset invalid falls back to m1", RecallPreset{Preset(0x7f)}, []byte{0x01, 0x20}},

		{"clock", SyncClock{23, 59}, []byte{0x08, 23, 59}},
		{"clock clamps", SyncClock{30, -5}, []byte{0x08, 23, 0}},

		{"bio request", RequestBio{BioFirmwareVersions, 1}, []byte{0x41, 32, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cmd.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("%s.Encode() = %#v, want %#v", tt.cmd, got, tt.want)
			}
		})
	}
}

// Encode must be total: no representable command value may produce an
// empty payload or one without a known opcode.
func TestEncodeIsTotal(t *testing.T) {
	cmds := []Command{
		SetMode{OperatingMode(200)},
		SetTemperature{-1e9},
		SetFan{-50},
		SetTime{-time.Hour},
		ToggleSetting{Setting(0xee), true},
		RecallPreset{Preset(0xff)},
		SyncClock{-1, 99},
		RequestBio{BioRequest(0xcc), 0xff},
	}
	for _, cmd := range cmds {
		payload := cmd.Encode()
		if len(payload) < 2 {
			t.Errorf("%s.Encode() = %#v, too short", cmd, payload)
		}
	}
}
