package protocol

import (
	"bytes"
	"fmt"
)

// BioData is a decoded bio-data record read after a RequestBio command.
// Exactly one of the payload fields is populated, matching Request.
type BioData struct {
	Request BioRequest
	Tag     uint8

	// DeviceName is set for BioDeviceName records.
	DeviceName string

	// Names holds the fixed-width name table for memory, biorhythm and
	// firmware records. An empty string means the slot is unused; the
	// device reports factory slots as "Default".
	Names []string
}

// bio-data name records are fixed 16-byte fields, NUL-terminated. A leading
// 0x00 marks a factory default slot and 0x01 an empty one.
const bioNameLen = 16

// DecodeBioData parses a bio-data characteristic read.
func DecodeBioData(data []byte) (BioData, error) {
	if len(data) < 2 {
		return BioData{}, fmt.Errorf("%w: bio data %d bytes", ErrMalformedFrame, len(data))
	}
	bd := BioData{
		Request: BioRequest(data[0]),
		Tag:     data[1],
	}
	payload := data[2:]

	switch bd.Request {
	case BioDeviceName:
		bd.DeviceName = bioString(payload)
	case BioMemoryNames, BioBiorhythmNames, BioFirmwareVersions:
		for len(payload) > 0 {
			n := bioNameLen
			if n > len(payload) {
				n = len(payload)
			}
			bd.Names = append(bd.Names, bioString(payload[:n]))
			payload = payload[n:]
		}
	default:
		return BioData{}, fmt.Errorf("%w: bio request 0x%02x", ErrUnsupportedFrame, data[0])
	}
	return bd, nil
}

func bioString(b []byte) string {
	if len(b) == 0 || b[0] == 0x01 {
		return ""
	}
	if b[0] == 0x00 {
		return "Default"
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
