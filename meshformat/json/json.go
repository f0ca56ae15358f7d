// Package json adapts encoding/json to meshformat.Format, producing the
// human-readable ChannelItem wire shape:
// {"channel": fork_id, "data": payload}.
package json

import (
	"encoding/json"

	"github.com/kindmesh/kindmesh/meshformat"
)

type format struct{}

// New returns the JSON meshformat.Format adapter.
func New() meshformat.Format {
	return format{}
}

func (format) Name() string         { return "json" }
func (format) HumanReadable() bool  { return true }

func (format) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &meshformat.ErrFormat{Format: "json", Cause: err}
	}
	return b, nil
}

func (format) Unmarshal(repr []byte, seed meshformat.Seed) (any, error) {
	target := seed.New()
	if err := json.Unmarshal(repr, target); err != nil {
		return nil, &meshformat.ErrFormat{Format: "json", Cause: err}
	}
	return target, nil
}

type wireItem struct {
	Channel uint64          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (format) JoinFrame(forkID uint64, payload []byte) ([]byte, error) {
	b, err := json.Marshal(wireItem{Channel: forkID, Data: payload})
	if err != nil {
		return nil, &meshformat.ErrFormat{Format: "json", Cause: err}
	}
	return b, nil
}

func (format) SplitFrame(frame []byte) (uint64, []byte, error) {
	var wire wireItem
	if err := json.Unmarshal(frame, &wire); err != nil {
		return 0, nil, &meshformat.ErrFormat{Format: "json", Cause: err}
	}
	return wire.Channel, []byte(wire.Data), nil
}
