package verifier

import (
	"encoding/binary"
	"fmt"
)

// Wire format of the opaque attestation bundle POSTed to /verify:
//
//	byte     0        protocol version
//	byte     1        device-property bitmask (8 flags, LSB first)
//	byte     2        deviceAdmin (0, 1, or 2)
//	bytes  3-4        certificate count, big-endian uint16
//	repeated:
//	  2 bytes         certificate length, big-endian uint16
//	  N bytes         DER certificate
//
// This is the auditor-protocol framing named in §4.2 step 1; the eight
// boolean flags and deviceAdmin are userspace device state the auditor
// app observes directly and are not part of the TEE-signed extension.
const (
	offsetVersion    = 0
	offsetFlags      = 1
	offsetDeviceAdm  = 2
	offsetCertCount  = 3
	headerLen        = 5
)

func parseMessage(data []byte) (byte, DeviceProperties, [][]byte, error) {
	var props DeviceProperties

	if len(data) > MaxMessageSize {
		return 0, props, nil, fmt.Errorf("message exceeds maximum size")
	}
	if len(data) < headerLen {
		return 0, props, nil, fmt.Errorf("message shorter than fixed header")
	}

	version := data[offsetVersion]
	flags := data[offsetFlags]
	props.UserProfileSecure = flags&(1<<0) != 0
	props.EnrolledBiometrics = flags&(1<<1) != 0
	props.Accessibility = flags&(1<<2) != 0
	props.ADBEnabled = flags&(1<<3) != 0
	props.AddUsersWhenLocked = flags&(1<<4) != 0
	props.DenyNewUSB = flags&(1<<5) != 0
	props.OEMUnlockAllowed = flags&(1<<6) != 0
	props.SystemUser = flags&(1<<7) != 0
	props.DeviceAdmin = int(data[offsetDeviceAdm])
	if props.DeviceAdmin > 2 {
		return 0, props, nil, fmt.Errorf("deviceAdmin out of range: %d", props.DeviceAdmin)
	}

	count := binary.BigEndian.Uint16(data[offsetCertCount : offsetCertCount+2])
	rest := data[headerLen:]

	certs := make([][]byte, 0, count)
	for i := 0; i < int(count); i++ {
		if len(rest) < 2 {
			return 0, props, nil, fmt.Errorf("truncated certificate length at index %d", i)
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) < n {
			return 0, props, nil, fmt.Errorf("truncated certificate body at index %d", i)
		}
		certs = append(certs, rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return 0, props, nil, fmt.Errorf("trailing bytes after declared certificate count")
	}

	return version, props, certs, nil
}
