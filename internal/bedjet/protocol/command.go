package protocol

import (
	"fmt"
	"math"
	"time"
)

// Command is a value to be written to the command characteristic. Commands
// carry no connection state; they are pure data. Encode is total: every
// representable Command value produces a valid payload, with out-of-range
// inputs clamped to the device's limits rather than rejected.
type Command interface {
	// Encode returns the write payload for the command characteristic.
	Encode() []byte
	fmt.Stringer
}

// SetMode selects an operating mode by pressing the matching button.
type SetMode struct {
	Mode OperatingMode
}

func (c SetMode) Encode() []byte {
	b, ok := modeButtons[c.Mode]
	if !ok {
		b = buttonOff
	}
	return []byte{opButton, byte(b)}
}

func (c SetMode) String() string { return "set_mode " + c.Mode.String() }

// SetTemperature sets the target temperature in degrees Celsius. The wire
// unit is half degrees; values are rounded to the nearest half degree and
// clamped to the byte range.
type SetTemperature struct {
	Celsius float64
}

func (c SetTemperature) Encode() []byte {
	v := math.Round(c.Celsius * 2)
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return []byte{opSetTemperature, byte(v)}
}

func (c SetTemperature) String() string { return fmt.Sprintf("set_temperature %.1f", c.Celsius) }

// SetFan sets the fan speed as a percentage. The device has 20 discrete
// steps of 5%; the percentage is clamped to 5–100 and rounded down to a step.
type SetFan struct {
	Percent int
}

func (c SetFan) Encode() []byte {
	p := c.Percent
	if p < 5 {
		p = 5
	} else if p > 100 {
		p = 100
	}
	return []byte{opSetFan, byte(p/5 - 1)}
}

func (c SetFan) String() string { return fmt.Sprintf("set_fan %d%%", c.Percent) }

// SetTime sets the remaining runtime. Negative durations clamp to zero and
// anything beyond the 255-hour field limit clamps to it.
type SetTime struct {
	Duration time.Duration
}

func (c SetTime) Encode() []byte {
	d := c.Duration
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	if hours > 255 {
		hours, minutes = 255, 59
	}
	return []byte{opSetRuntime, byte(hours), byte(minutes)}
}

func (c SetTime) String() string { return "set_time " + c.Duration.String() }

// ToggleSetting flips a device configuration flag (LEDs, beep mute).
type ToggleSetting struct {
	Setting Setting
	On      bool
}

func (c ToggleSetting) Encode() []byte {
	on := byte(0)
	if c.On {
		on = 1
	}
	return []byte{opSetHacks, byte(c.Setting), on}
}

func (c ToggleSetting) String() string {
	return fmt.Sprintf("toggle_setting 0x%02x=%v", byte(c.Setting), c.On)
}

// RecallPreset starts a stored memory or biorhythm program. Invalid slots
// encode as the M1 slot.
type RecallPreset struct {
	Preset Preset
}

func (c RecallPreset) Encode() []byte {
	p := c.Preset
	if !p.Valid() {
		p = PresetM1
	}
	return []byte{opButton, byte(p)}
}

func (c RecallPreset) String() string { return fmt.Sprintf("recall_preset 0x%02x", byte(c.Preset)) }

// SyncClock sets the device clock, required before biorhythm programs can
// run. Hour and minute are clamped to valid wall-clock values.
type SyncClock struct {
	Hour   int
	Minute int
}

func (c SyncClock) Encode() []byte {
	h, m := c.Hour, c.Minute
	if h < 0 {
		h = 0
	} else if h > 23 {
		h = 23
	}
	if m < 0 {
		m = 0
	} else if m > 59 {
		m = 59
	}
	return []byte{opSetClock, byte(h), byte(m)}
}

func (c SyncClock) String() string { return fmt.Sprintf("sync_clock %02d:%02d", c.Hour, c.Minute) }

// RequestBio asks the device to load a bio-data record (device name,
// preset names, firmware version) for a subsequent characteristic read.
type RequestBio struct {
	Request BioRequest
	Tag     uint8
}

func (c RequestBio) Encode() []byte {
	return []byte{opGetBio, byte(c.Request), c.Tag}
}

func (c RequestBio) String() string { return fmt.Sprintf("request_bio %d tag %d", c.Request, c.Tag) }
