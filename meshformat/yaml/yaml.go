// Package yaml adapts gopkg.in/yaml.v3 to meshformat.StringFormat, the
// string-producing codec meshformat.Transcode wraps into a byte-producing
// meshformat.Format via UTF-8 transcoding.
package yaml

import (
	"gopkg.in/yaml.v3"

	"github.com/kindmesh/kindmesh/meshformat"
)

type format struct{}

// New returns the YAML meshformat.StringFormat adapter.
func New() meshformat.StringFormat { return format{} }

func (format) Name() string        { return "yaml" }
func (format) HumanReadable() bool { return true }

func (format) MarshalString(v any) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", &meshformat.ErrFormat{Format: "yaml", Cause: err}
	}
	return string(b), nil
}

func (format) UnmarshalString(repr string, seed meshformat.Seed) (any, error) {
	target := seed.New()
	if err := yaml.Unmarshal([]byte(repr), target); err != nil {
		return nil, &meshformat.ErrFormat{Format: "yaml", Cause: err}
	}
	return target, nil
}

type wireItem struct {
	Channel uint64 `yaml:"channel"`
	Data    string `yaml:"data"`
}

func (format) JoinFrameString(forkID uint64, payload string) (string, error) {
	b, err := yaml.Marshal(wireItem{Channel: forkID, Data: payload})
	if err != nil {
		return "", &meshformat.ErrFormat{Format: "yaml", Cause: err}
	}
	return string(b), nil
}

func (format) SplitFrameString(frame string) (uint64, string, error) {
	var wire wireItem
	if err := yaml.Unmarshal([]byte(frame), &wire); err != nil {
		return 0, "", &meshformat.ErrFormat{Format: "yaml", Cause: err}
	}
	return wire.Channel, wire.Data, nil
}
