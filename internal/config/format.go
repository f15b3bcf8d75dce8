package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type codec struct {
	name   string
	decode func([]byte, any) error
	encode func(any) ([]byte, error)
}

var (
	tomlCodec = codec{"TOML", toml.Unmarshal, toml.Marshal}
	jsonCodec = codec{"JSON", json.Unmarshal, func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }}
	yamlCodec = codec{"YAML", yaml.Unmarshal, yaml.Marshal}
)

// codecs by file extension. Unknown extensions are tried in this order.
var codecs = map[string]codec{
	".toml": tomlCodec,
	".json": jsonCodec,
	".yaml": yamlCodec,
	".yml":  yamlCodec,
}

var guessOrder = []codec{tomlCodec, jsonCodec, yamlCodec}

// codecFor returns the codec for path, TOML when the extension is unknown.
func codecFor(path string) (codec, bool) {
	c, ok := codecs[filepath.Ext(path)]
	if !ok {
		return tomlCodec, false
	}
	return c, true
}

// readFile decodes path over the defaults. A missing file yields the
// defaults unchanged.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if c, ok := codecFor(path); ok {
		cfg := DefaultConfig()
		if err := c.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return cfg, nil
	}
	for _, c := range guessOrder {
		cfg := DefaultConfig()
		if c.decode(data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("parse config: not TOML, JSON or YAML")
}
