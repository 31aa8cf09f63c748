package gatt

import "fmt"

// Status is the completion status reported by the hardware for an operation.
// Values below 0x100 are ATT error codes; the rest are platform statuses.
type Status int

const (
	StatusSuccess                       Status = 0x00
	StatusInvalidHandle                 Status = 0x01
	StatusReadNotPermitted              Status = 0x02
	StatusWriteNotPermitted             Status = 0x03
	StatusInvalidPDU                    Status = 0x04
	StatusInsufficientAuthentication    Status = 0x05
	StatusRequestNotSupported           Status = 0x06
	StatusInvalidOffset                 Status = 0x07
	StatusInsufficientAuthorization     Status = 0x08
	StatusPrepareQueueFull              Status = 0x09
	StatusAttributeNotFound             Status = 0x0a
	StatusAttributeNotLong              Status = 0x0b
	StatusInsufficientEncryptionKeySize Status = 0x0c
	StatusInvalidAttributeValueLength   Status = 0x0d
	StatusUnlikelyError                 Status = 0x0e
	StatusInsufficientEncryption        Status = 0x0f
	StatusUnsupportedGroupType          Status = 0x10
	StatusInsufficientResources         Status = 0x11

	StatusConnectionCongested Status = 0x8f
	StatusFailure             Status = 0x101
	StatusLinkLoss            Status = 0x102 // supervision timeout or remote termination
	StatusLocalTermination    Status = 0x103
)

var statusNames = map[Status]string{
	StatusSuccess:                       "success",
	StatusInvalidHandle:                 "invalid handle",
	StatusReadNotPermitted:              "read not permitted",
	StatusWriteNotPermitted:             "write not permitted",
	StatusInvalidPDU:                    "invalid PDU",
	StatusInsufficientAuthentication:    "insufficient authentication",
	StatusRequestNotSupported:           "request not supported",
	StatusInvalidOffset:                 "invalid offset",
	StatusInsufficientAuthorization:     "insufficient authorization",
	StatusPrepareQueueFull:              "prepare queue full",
	StatusAttributeNotFound:             "attribute not found",
	StatusAttributeNotLong:              "attribute not long",
	StatusInsufficientEncryptionKeySize: "insufficient encryption key size",
	StatusInvalidAttributeValueLength:   "invalid attribute value length",
	StatusUnlikelyError:                 "unlikely error",
	StatusInsufficientEncryption:        "insufficient encryption",
	StatusUnsupportedGroupType:          "unsupported group type",
	StatusInsufficientResources:         "insufficient resources",
	StatusConnectionCongested:           "connection congested",
	StatusFailure:                       "failure",
	StatusLinkLoss:                      "link loss",
	StatusLocalTermination:              "local termination",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (0x%02x)", name, int(s))
	}
	return fmt.Sprintf("0x%02x", int(s))
}

// OK reports whether the status is StatusSuccess
func (s Status) OK() bool {
	return s == StatusSuccess
}

// RequiresAuthentication reports whether the peer refused the operation until
// the link is bonded. Such completions suspend the command queue.
func (s Status) RequiresAuthentication() bool {
	return s == StatusInsufficientAuthentication || s == StatusInsufficientEncryption
}
