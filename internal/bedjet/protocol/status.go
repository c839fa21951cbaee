package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Decode-time errors. Both are non-fatal to the connection: a bad frame is
// dropped and the previous state kept.
var (
	ErrMalformedFrame   = errors.New("protocol: malformed frame")
	ErrUnsupportedFrame = errors.New("protocol: unsupported frame type")
)

// Status frame layout on the status characteristic. All multi-field values
// are single bytes except the turbo countdown, which is a big-endian uint16.
// Frames may carry trailing bytes beyond offset 18 (newer firmware appends
// fields); those are ignored.
const (
	frameTypeStatus   = 0x00
	frameTypeExtended = 0x01

	statusFrameLen   = 20
	extendedFrameLen = 11
)

// DeviceStatus is a complete decoded status snapshot. It is produced only
// by DecodeStatus; decoding either yields the whole struct or fails.
type DeviceStatus struct {
	// Sequence is the device's rolling frame counter. It wraps at 255 and
	// is only useful for spotting dropped or duplicated notifications.
	Sequence uint8

	// TimeRemaining counts down to automatic shutdown. A zero duration
	// while Mode is active means the device reported no countdown
	// (unlimited run).
	TimeRemaining time.Duration
	MaxRuntime    time.Duration

	// Temperatures in degrees Celsius. The wire carries half-degree units.
	CurrentTemp float64
	TargetTemp  float64
	AmbientTemp float64
	MinTemp     float64
	MaxTemp     float64

	Mode OperatingMode

	// FanPercent is 5–100 in steps of 5.
	FanPercent int

	// TurboTime is the remaining turbo burst, if any.
	TurboTime time.Duration

	ShutdownReason uint8
}

// InProgram reports whether the device is executing a biorhythm program
// (it parks in ModeWait between program steps).
func (s DeviceStatus) InProgram() bool { return s.Mode == ModeWait }

// DecodeStatus parses a status notification payload. It returns
// ErrMalformedFrame for frames too short to carry the fixed fields and
// ErrUnsupportedFrame when the leading type byte is not a status frame.
// The type byte is checked before the length: other frame types are
// shorter than a status frame, and callers dispatch to the matching
// decoder on ErrUnsupportedFrame.
func DecodeStatus(data []byte) (DeviceStatus, error) {
	if len(data) == 0 {
		return DeviceStatus{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if data[0] != frameTypeStatus {
		return DeviceStatus{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedFrame, data[0])
	}
	if len(data) < statusFrameLen {
		return DeviceStatus{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedFrame, len(data), statusFrameLen)
	}

	mode := OperatingMode(data[9])
	if !mode.Valid() {
		return DeviceStatus{}, fmt.Errorf("%w: operating mode 0x%02x", ErrMalformedFrame, data[9])
	}
	fanStep := int(data[10])
	if fanStep > 19 {
		return DeviceStatus{}, fmt.Errorf("%w: fan step %d", ErrMalformedFrame, fanStep)
	}

	return DeviceStatus{
		Sequence: data[1],
		TimeRemaining: time.Duration(data[4])*time.Hour +
			time.Duration(data[5])*time.Minute +
			time.Duration(data[6])*time.Second,
		CurrentTemp: halfDegrees(data[7]),
		TargetTemp:  halfDegrees(data[8]),
		Mode:        mode,
		FanPercent:  (fanStep + 1) * 5,
		MaxRuntime: time.Duration(data[11])*time.Hour +
			time.Duration(data[12])*time.Minute,
		MinTemp:        halfDegrees(data[13]),
		MaxTemp:        halfDegrees(data[14]),
		TurboTime:      time.Duration(binary.BigEndian.Uint16(data[15:17])) * time.Second,
		AmbientTemp:    halfDegrees(data[17]),
		ShutdownReason: data[18],
	}, nil
}

// ExtendedStatus carries the device configuration flags reported on the
// status characteristic outside the regular heartbeat cadence.
type ExtendedStatus struct {
	DualZone       bool
	UpdatePhase    uint8
	ConnTestPassed bool
	LEDsEnabled    bool
	UnitsSetup     bool
	BeepsMuted     bool
	BioStep        uint8
	Notification   DeviceNotification
}

// DecodeExtendedStatus parses an extended status frame.
func DecodeExtendedStatus(data []byte) (ExtendedStatus, error) {
	if len(data) == 0 {
		return ExtendedStatus{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if data[0] != frameTypeExtended {
		return ExtendedStatus{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedFrame, data[0])
	}
	if len(data) < extendedFrameLen {
		return ExtendedStatus{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedFrame, len(data), extendedFrameLen)
	}
	return ExtendedStatus{
		DualZone:       data[2]&0x02 != 0,
		UpdatePhase:    data[6],
		ConnTestPassed: data[7]&0x20 != 0,
		LEDsEnabled:    data[7]&uint8(SettingLED) != 0,
		UnitsSetup:     data[7]&0x04 != 0,
		BeepsMuted:     data[7]&uint8(SettingMuteBeeps) != 0,
		BioStep:        data[8],
		Notification:   DeviceNotification(data[9]),
	}, nil
}

// halfDegrees converts the wire's Celsius*2 byte to degrees.
func halfDegrees(b byte) float64 { return float64(b) / 2 }
