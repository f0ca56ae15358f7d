// Package msgpack adapts github.com/vmihailenco/msgpack/v5 to
// meshformat.Format, producing the binary ChannelItem wire shape: a
// two-element sequence [fork_id, payload].
package msgpack

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kindmesh/kindmesh/meshformat"
)

type format struct{}

// New returns the MessagePack meshformat.Format adapter.
func New() meshformat.Format {
	return format{}
}

func (format) Name() string        { return "msgpack" }
func (format) HumanReadable() bool { return false }

func (format) Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	return b, nil
}

func (format) Unmarshal(repr []byte, seed meshformat.Seed) (any, error) {
	target := seed.New()
	if err := msgpack.Unmarshal(repr, target); err != nil {
		return nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	return target, nil
}

func (format) JoinFrame(forkID uint64, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(2); err != nil {
		return nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	if err := enc.EncodeUint64(forkID); err != nil {
		return nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	if err := enc.Encode(msgpack.RawMessage(payload)); err != nil {
		return nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	return buf.Bytes(), nil
}

func (format) SplitFrame(frame []byte) (uint64, []byte, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(frame))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	if n != 2 {
		return 0, nil, &meshformat.ErrFormat{Format: "msgpack", Cause: errArrayLen(n)}
	}
	forkID, err := dec.DecodeUint64()
	if err != nil {
		return 0, nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	var raw msgpack.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return 0, nil, &meshformat.ErrFormat{Format: "msgpack", Cause: err}
	}
	return forkID, []byte(raw), nil
}

type errArrayLen int

func (n errArrayLen) Error() string {
	return "msgpack: channel item frame must be a 2-element array"
}
