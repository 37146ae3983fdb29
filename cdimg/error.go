// Package cdimg implements the layered, reference-counted sector-source
// graph used to read CD-ROM disc images (GDI, NRG, NullDC NRG) and
// physical SCSI/MMC media.
package cdimg

import "fmt"

// Error is the CDROM error taxonomy of the original driver layer: a
// 16-bit code laid out as an MMC sense-key|ASC pair so the value can be
// surfaced to a guest that expects MMC sense data.
type Error uint16

const (
	ErrOK        Error = 0x0000
	ErrNoDisc    Error = 0x3A02
	ErrBadCmd    Error = 0x2005
	ErrBadField  Error = 0x2405
	ErrBadRead   Error = 0x3002
	ErrBadReadMode Error = 0x6405
	ErrReadError Error = 0x1103
	ErrReset     Error = 0x2906
)

var errorNames = map[Error]string{
	ErrOK:          "ok",
	ErrNoDisc:      "no disc",
	ErrBadCmd:      "bad command",
	ErrBadField:    "bad field",
	ErrBadRead:     "bad read",
	ErrBadReadMode: "bad read mode",
	ErrReadError:   "read error",
	ErrReset:       "reset",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return fmt.Sprintf("cdimg: %s (sense %#04x)", name, uint16(e))
	}
	return fmt.Sprintf("cdimg: unknown error (sense %#04x)", uint16(e))
}

// SenseKey returns the low byte of the error code (the MMC sense key).
func (e Error) SenseKey() uint8 { return uint8(e) }

// ASC returns the additional sense code byte.
func (e Error) ASC() uint8 { return uint8(e >> 8) }

// GenericError carries the generic (non-CDROM-specific) taxonomy: None,
// NoMem, FileInvalid, FileUnknown, FileNoOpen, FileIoError, Unhandled -
// each paired with a human-readable message. Open returns one with code
// GenericFileUnknown when no registered format recognizes a file; the
// format loaders' own errors and the ISO-9660 reader's are pkg/errors
// values, not GenericError.
type GenericError struct {
	Code    GenericCode
	Message string
}

type GenericCode int

const (
	GenericNone GenericCode = iota
	GenericNoMem
	GenericFileInvalid
	GenericFileUnknown
	GenericFileNoOpen
	GenericFileIOError
	GenericUnhandled
)

func (e *GenericError) Error() string {
	return e.Message
}

func newGenericError(code GenericCode, format string, args ...interface{}) *GenericError {
	return &GenericError{Code: code, Message: fmt.Sprintf(format, args...)}
}
