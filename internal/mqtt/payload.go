package mqtt

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jcrd/bedjetd/internal/bedjet"
	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
)

// StatePayload is the retained JSON document published on <prefix>/state.
// Temperatures and end times pass through the damping limiters so the
// retained topic does not churn on sensor jitter.
type StatePayload struct {
	Connected   bool    `json:"connected"`
	Mode        string  `json:"mode"`
	CurrentTemp float64 `json:"current_temperature"`
	TargetTemp  float64 `json:"target_temperature"`
	AmbientTemp float64 `json:"ambient_temperature"`
	FanPercent  int     `json:"fan_percent"`

	// TimeRemaining is seconds until automatic shutdown; 0 while running
	// means no countdown. EndTime is the damped wall-clock shutdown time
	// in RFC 3339, empty when nothing is running.
	TimeRemaining int64  `json:"time_remaining_seconds"`
	MaxRuntime    int64  `json:"max_runtime_seconds,omitempty"`
	EndTime       string `json:"end_time,omitempty"`

	InProgram bool `json:"in_program"`

	Name     string `json:"name,omitempty"`
	Firmware string `json:"firmware,omitempty"`
}

// payloadBuilder folds snapshots into publishable state documents. Safe
// for concurrent use: the bridge's seed publish at startup can overlap a
// session reaching Ready on its own goroutine.
type payloadBuilder struct {
	mu      sync.Mutex
	temp    bedjet.TemperatureLimiter
	ambient bedjet.TemperatureLimiter
	endTime bedjet.EndTimeLimiter
}

func (b *payloadBuilder) build(s bedjet.Snapshot, info bedjet.DeviceInfo, now time.Time) StatePayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := StatePayload{
		Connected:     s.Connected,
		Mode:          s.Status.Mode.String(),
		CurrentTemp:   b.temp.Update(s.Status.CurrentTemp, now),
		TargetTemp:    s.Status.TargetTemp,
		AmbientTemp:   b.ambient.Update(s.Status.AmbientTemp, now),
		FanPercent:    s.Status.FanPercent,
		TimeRemaining: int64(s.Status.TimeRemaining / time.Second),
		InProgram:     s.Status.InProgram(),
		Name:          info.Name,
		Firmware:      info.FirmwareVersion,
	}

	// V3 hardware reports the runtime limit in every frame; V2 leaves it
	// zero and the limit has to come from the temperature/fan table.
	if s.Status.Mode != protocol.ModeStandby {
		maxRuntime := s.Status.MaxRuntime
		if maxRuntime == 0 {
			maxRuntime = protocol.MaximumRuntime(s.Status.TargetTemp, s.Status.FanPercent)
		}
		p.MaxRuntime = int64(maxRuntime / time.Second)
	}

	remaining := s.Status.TimeRemaining
	if s.Status.Mode == protocol.ModeStandby {
		remaining = 0
	}
	if end := b.endTime.Update(remaining, now); !end.IsZero() && end.After(now) {
		p.EndTime = end.Format(time.RFC3339)
	}
	return p
}

// ParseCommand maps a command topic suffix and payload to a protocol
// command and its coalescing key. The suffix is the part after
// <prefix>/set/.
func ParseCommand(suffix string, payload []byte) (protocol.Command, string, error) {
	value := strings.TrimSpace(string(payload))

	switch suffix {
	case "temperature":
		celsius, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, "", fmt.Errorf("temperature %q: %w", value, err)
		}
		return protocol.SetTemperature{Celsius: celsius}, "setpoint", nil

	case "mode":
		mode, ok := protocol.ParseMode(value)
		if !ok {
			return nil, "", fmt.Errorf("unknown mode %q", value)
		}
		return protocol.SetMode{Mode: mode}, "mode", nil

	case "fan":
		percent, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return nil, "", fmt.Errorf("fan %q: %w", value, err)
		}
		return protocol.SetFan{Percent: percent}, "fan", nil

	case "timer":
		d, err := parseRuntime(value)
		if err != nil {
			return nil, "", err
		}
		return protocol.SetTime{Duration: d}, "timer", nil

	case "preset":
		preset, ok := parsePreset(value)
		if !ok {
			return nil, "", fmt.Errorf("unknown preset %q", value)
		}
		return protocol.RecallPreset{Preset: preset}, "preset", nil

	case "led":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, "", err
		}
		return protocol.ToggleSetting{Setting: protocol.SettingLED, On: on}, "led", nil

	case "mute":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, "", err
		}
		return protocol.ToggleSetting{Setting: protocol.SettingMuteBeeps, On: on}, "mute", nil

	case "clock":
		// Biorhythm programs refuse to start until the device clock is
		// set. "now" syncs to the host clock.
		if strings.EqualFold(value, "now") {
			now := time.Now()
			return protocol.SyncClock{Hour: now.Hour(), Minute: now.Minute()}, "clock", nil
		}
		t, err := time.Parse("15:04", value)
		if err != nil {
			return nil, "", fmt.Errorf("clock %q: %w", value, err)
		}
		return protocol.SyncClock{Hour: t.Hour(), Minute: t.Minute()}, "clock", nil
	}

	return nil, "", fmt.Errorf("unknown command topic %q", suffix)
}

// parseRuntime accepts a duration string ("2h30m") or plain minutes ("90").
func parseRuntime(value string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(value); err == nil {
		if minutes < 0 {
			return 0, fmt.Errorf("timer %q: negative", value)
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("timer %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timer %q: negative", value)
	}
	return d, nil
}

var presetNames = map[string]protocol.Preset{
	"m1":   protocol.PresetM1,
	"m2":   protocol.PresetM2,
	"m3":   protocol.PresetM3,
	"bio1": protocol.PresetBio1,
	"bio2": protocol.PresetBio2,
	"bio3": protocol.PresetBio3,
}

func parsePreset(value string) (protocol.Preset, bool) {
	p, ok := presetNames[strings.ToLower(value)]
	return p, ok
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on/off, got %q", value)
}
