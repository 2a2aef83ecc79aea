// Package id provides the prefixed TypeID identifiers used by streams and
// their events, e.g. "strm_01h2xcejqtf2nbrexx3vqjhp41".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the type tag in front of the underscore.
type Prefix string

const (
	PrefixStream Prefix = "strm"
	PrefixEvent  Prefix = "sevt"
)

// ID is a prefixed, time-sortable identifier. The zero value is Nil and
// encodes as an empty string.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

type (
	// StreamID identifies a stream.
	StreamID = ID
	// EventID identifies a stream event.
	EventID = ID
)

// New returns a fresh ID. It panics on a malformed prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewStreamID() StreamID { return New(PrefixStream) }
func NewEventID() EventID   { return New(PrefixEvent) }

// Parse accepts any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseStreamID parses s and requires the stream prefix.
func ParseStreamID(s string) (StreamID, error) { return parseAs(s, PrefixStream) }

// ParseEventID parses s and requires the event prefix.
func ParseEventID(s string) (EventID, error) { return parseAs(s, PrefixEvent) }

func parseAs(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
