package pmx

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below unwraps to one of these.
var (
	ErrFormat      = errors.New("pmx: bad format")
	ErrTruncated   = errors.New("pmx: truncated data")
	ErrUnsupported = errors.New("pmx: unsupported feature")
	ErrReference   = errors.New("pmx: index out of range")
	ErrCycle       = errors.New("pmx: cycle")
)

// FormatError reports a malformed header or structurally invalid field.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("pmx: bad %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("pmx: bad format: %s", e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// TruncatedDataError reports a read past the end of the input.
type TruncatedDataError struct {
	Offset int
	Want   int
	Have   int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("pmx: truncated at offset %d: need %d bytes, have %d", e.Offset, e.Want, e.Have)
}

func (e *TruncatedDataError) Unwrap() error { return ErrTruncated }

// UnsupportedFeatureError reports a feature gated behind a newer version.
type UnsupportedFeatureError struct {
	Feature    string
	MinVersion float32
	Version    float32
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("pmx: %s requires version %.1f, file is %.1f", e.Feature, e.MinVersion, e.Version)
}

func (e *UnsupportedFeatureError) Unwrap() error { return ErrUnsupported }

// ReferenceError reports an index that is neither absent nor in range.
type ReferenceError struct {
	Section string
	Item    int
	Field   string
	Index   Index
	Len     int
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("pmx: %s[%d].%s = %d out of range [0,%d)", e.Section, e.Item, e.Field, e.Index, e.Len)
}

func (e *ReferenceError) Unwrap() error { return ErrReference }

// CycleError reports a loop in the bone-parent tree or between group morphs.
type CycleError struct {
	Kind string
	Path []Index
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = fmt.Sprint(int32(p))
	}
	return fmt.Sprintf("pmx: %s cycle: %s", e.Kind, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }
