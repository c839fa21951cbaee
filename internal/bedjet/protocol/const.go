// Package protocol implements the BedJet BLE wire protocol: decoding status
// notification frames into a DeviceStatus and encoding commands into write
// payloads for the command characteristic. The package does no I/O and
// holds no connection state; it is the only place unit conversion between the
// device's native integer units (half-degrees Celsius, 5% fan steps,
// hour/minute runtimes) and ordinary values happens.
package protocol

// BedJet GATT UUIDs.
const (
	ServiceUUID     = "00001000-bed0-0080-aa55-4265644a6574"
	StatusCharUUID  = "00002000-bed0-0080-aa55-4265644a6574"
	NameCharUUID    = "00002001-bed0-0080-aa55-4265644a6574"
	CommandCharUUID = "00002004-bed0-0080-aa55-4265644a6574"
	BioDataCharUUID = "00002006-bed0-0080-aa55-4265644a6574"
)

// OperatingMode is the device operating mode as reported in status frames.
type OperatingMode uint8

const (
	ModeStandby      OperatingMode = 0 // off
	ModeHeat         OperatingMode = 1 // limited to 4 hours
	ModeTurbo        OperatingMode = 2 // high heat, limited time
	ModeExtendedHeat OperatingMode = 3 // limited to 10 hours
	ModeCool         OperatingMode = 4 // fan only
	ModeDry          OperatingMode = 5 // high speed, no heat
	ModeWait         OperatingMode = 6 // idle step inside a biorhythm program
)

// Valid reports whether m is a mode the device can report.
func (m OperatingMode) Valid() bool { return m <= ModeWait }

func (m OperatingMode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeHeat:
		return "heat"
	case ModeTurbo:
		return "turbo"
	case ModeExtendedHeat:
		return "extended_heat"
	case ModeCool:
		return "cool"
	case ModeDry:
		return "dry"
	case ModeWait:
		return "wait"
	}
	return "unknown"
}

// ParseMode converts a mode name (as produced by String) back to an
// OperatingMode. The second return value is false for unknown names.
func ParseMode(s string) (OperatingMode, bool) {
	for m := ModeStandby; m <= ModeWait; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return ModeStandby, false
}

// Command opcodes (first byte of a command characteristic write).
const (
	opButton         = 0x01
	opSetRuntime     = 0x02
	opSetTemperature = 0x03
	opSetHacks       = 0x05
	opSetFan         = 0x07
	opSetClock       = 0x08
	opGetBio         = 0x41
)

// button identifies a front-panel button press sent via opButton.
type button uint8

const (
	buttonOff          button = 0x01
	buttonCool         button = 0x02
	buttonHeat         button = 0x03
	buttonTurbo        button = 0x04
	buttonDry          button = 0x05
	buttonExtendedHeat button = 0x06
)

// modeButtons maps an operating mode to the button that selects it.
// ModeWait has no button: the device enters it on its own during a
// biorhythm program, so commanding it falls back to standby.
var modeButtons = map[OperatingMode]button{
	ModeStandby:      buttonOff,
	ModeHeat:         buttonHeat,
	ModeTurbo:        buttonTurbo,
	ModeExtendedHeat: buttonExtendedHeat,
	ModeCool:         buttonCool,
	ModeDry:          buttonDry,
}

// Preset identifies a stored program recalled via the button opcode.
type Preset uint8

const (
	PresetM1   Preset = 0x20
	PresetM2   Preset = 0x21
	PresetM3   Preset = 0x22
	PresetBio1 Preset = 0x80
	PresetBio2 Preset = 0x81
	PresetBio3 Preset = 0x82
)

// Valid reports whether p is a recallable preset slot.
func (p Preset) Valid() bool {
	return (p >= PresetM1 && p <= PresetM3) || (p >= PresetBio1 && p <= PresetBio3)
}

// Setting is a device configuration flag toggled via the hacks opcode.
// The bit values mirror the flag byte of the extended status frame.
type Setting uint8

const (
	SettingMuteBeeps Setting = 0x01
	SettingLED       Setting = 0x10
)

// BioRequest selects which record a bio-data read should return.
type BioRequest uint8

const (
	BioDeviceName       BioRequest = 0
	BioMemoryNames      BioRequest = 1
	BioBiorhythmNames   BioRequest = 4
	BioFirmwareVersions BioRequest = 32
)

// DeviceNotification is a pending user-facing notification reported in the
// extended status frame.
type DeviceNotification uint8

const (
	NotifyNone               DeviceNotification = 0
	NotifyCleanFilter        DeviceNotification = 1
	NotifyUpdateAvailable    DeviceNotification = 2
	NotifyUpdateFailed       DeviceNotification = 3
	NotifyBioFailClockNotSet DeviceNotification = 4
	NotifyBioFailTooLong     DeviceNotification = 5
)

func (n DeviceNotification) String() string {
	switch n {
	case NotifyNone:
		return "none"
	case NotifyCleanFilter:
		return "clean_filter"
	case NotifyUpdateAvailable:
		return "update_available"
	case NotifyUpdateFailed:
		return "update_failed"
	case NotifyBioFailClockNotSet:
		return "bio_fail_clock_not_set"
	case NotifyBioFailTooLong:
		return "bio_fail_too_long"
	}
	return "unknown"
}
