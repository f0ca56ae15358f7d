// Package meshformat defines the wire-codec boundary kindmesh consumes: a
// byte/string representation on one side, a structured Go value on the
// other, and a seed-based deserialization path for the one place the codec
// needs context it can't get from the bytes alone — decoding a ChannelItem,
// whose payload type depends on which ForkID it arrived on.
package meshformat

import "fmt"

// Seed carries the context a Format needs to deserialize a dependent
// element. For kindmesh the only seed in play is "decode this payload as
// the item shape of the Kind reading this fork" (its NewConstructItem), but
// the interface is kept generic so a Format implementation never needs to
// know about forks.
type Seed interface {
	// New returns a fresh, zero-valued pointer the Format should populate.
	New() any
}

// SeedFunc adapts a plain function to Seed.
type SeedFunc func() any

// New implements Seed.
func (f SeedFunc) New() any { return f() }

// Format is the minimal codec surface kindmesh depends on. A Format may be
// human-readable (maps) or binary (sequences); meshformat/json and
// meshformat/msgpack are the two concrete adapters kindmesh ships.
type Format interface {
	// Name identifies the format for logging/metrics, e.g. "json", "msgpack".
	Name() string

	// HumanReadable reports which ChannelItem wire shape this format uses:
	// {"channel":...,"data":...} when true, [fork_id, payload] when false.
	HumanReadable() bool

	// Marshal serializes v to this format's native representation.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes repr into a value shaped like seed.New().
	// The returned value is whatever seed.New() populated.
	Unmarshal(repr []byte, seed Seed) (any, error)

	// JoinFrame wraps an already-encoded payload with its ForkID using this
	// format's ChannelItem wire shape: a {"channel","data"} map
	// for human-readable formats, a [fork_id, payload] sequence otherwise.
	JoinFrame(forkID uint64, payload []byte) ([]byte, error)

	// SplitFrame is JoinFrame's inverse: it peels a ForkID off the front of
	// a frame and returns the still-encoded payload bytes, deferring payload
	// decoding until the caller has looked up the right Seed for that fork.
	SplitFrame(frame []byte) (forkID uint64, payload []byte, err error)
}

// StringFormat is a Format variant whose native representation is a string
// rather than bytes — the shape a textual codec built on Go's string-typed
// APIs (strconv, text/template, a YAML library) produces most naturally.
// Transcode adapts any StringFormat to Format.
type StringFormat interface {
	Name() string
	HumanReadable() bool
	MarshalString(v any) (string, error)
	UnmarshalString(repr string, seed Seed) (any, error)
	JoinFrameString(forkID uint64, payload string) (string, error)
	SplitFrameString(frame string) (forkID uint64, payload string, err error)
}

// Transcode adapts sf to Format by UTF-8 transcoding: every string sf
// produces becomes the []byte a Format caller expects, and every []byte a
// Format caller hands in becomes the string sf expects.
func Transcode(sf StringFormat) Format {
	return transcoded{sf: sf}
}

type transcoded struct{ sf StringFormat }

func (t transcoded) Name() string        { return t.sf.Name() }
func (t transcoded) HumanReadable() bool { return t.sf.HumanReadable() }

func (t transcoded) Marshal(v any) ([]byte, error) {
	s, err := t.sf.MarshalString(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (t transcoded) Unmarshal(repr []byte, seed Seed) (any, error) {
	return t.sf.UnmarshalString(string(repr), seed)
}

func (t transcoded) JoinFrame(forkID uint64, payload []byte) ([]byte, error) {
	s, err := t.sf.JoinFrameString(forkID, string(payload))
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (t transcoded) SplitFrame(frame []byte) (uint64, []byte, error) {
	forkID, payload, err := t.sf.SplitFrameString(string(frame))
	if err != nil {
		return 0, nil, err
	}
	return forkID, []byte(payload), nil
}

// ErrFormat wraps a Marshal/Unmarshal failure with the format name that
// produced it, so a DecodeError (idchannel) can report which codec failed.
type ErrFormat struct {
	Format string
	Cause  error
}

func (e *ErrFormat) Error() string {
	return fmt.Sprintf("meshformat(%s): %v", e.Format, e.Cause)
}

func (e *ErrFormat) Unwrap() error { return e.Cause }
