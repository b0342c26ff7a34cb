package flif

import "errors"

// Decode errors. All of them are terminal for the decode call that returned
// them; callers classify with errors.Is or Code.
var (
	ErrBadMagic             = errors.New("flif: bad magic")
	ErrUnsupportedFeature   = errors.New("flif: unsupported feature")
	ErrTruncatedInput       = errors.New("flif: truncated input")
	ErrMalformedVarint      = errors.New("flif: malformed varint")
	ErrCorruptTree          = errors.New("flif: corrupt context tree")
	ErrCorruptPixelValue    = errors.New("flif: corrupt pixel value")
	ErrChannelCountMismatch = errors.New("flif: channel count mismatch")
	ErrInvalidHeader        = errors.New("flif: invalid header")
)

// ErrorCode is the numeric form of a decode error handed across the host
// boundary.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeBadMagic
	CodeUnsupportedFeature
	CodeTruncatedInput
	CodeMalformedVarint
	CodeCorruptTree
	CodeCorruptPixelValue
	CodeChannelCountMismatch
	CodeInvalidHeader
	CodeUnknown
)

var codeNames = map[ErrorCode]string{
	CodeOK:                   "OK",
	CodeBadMagic:             "BadMagic",
	CodeUnsupportedFeature:   "UnsupportedFeature",
	CodeTruncatedInput:       "TruncatedInput",
	CodeMalformedVarint:      "MalformedVarint",
	CodeCorruptTree:          "CorruptTree",
	CodeCorruptPixelValue:    "CorruptPixelValue",
	CodeChannelCountMismatch: "ChannelCountMismatch",
	CodeInvalidHeader:        "InvalidHeader",
	CodeUnknown:              "Unknown",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[CodeUnknown]
}

var codesByErr = []struct {
	err  error
	code ErrorCode
}{
	{ErrBadMagic, CodeBadMagic},
	{ErrUnsupportedFeature, CodeUnsupportedFeature},
	{ErrTruncatedInput, CodeTruncatedInput},
	{ErrMalformedVarint, CodeMalformedVarint},
	{ErrCorruptTree, CodeCorruptTree},
	{ErrCorruptPixelValue, CodeCorruptPixelValue},
	{ErrChannelCountMismatch, CodeChannelCountMismatch},
	{ErrInvalidHeader, CodeInvalidHeader},
}

// Code maps an error returned by this package to its ErrorCode.
func Code(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	for _, c := range codesByErr {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
