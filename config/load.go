package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads, decodes, and validates a configuration file. Fields
// the file omits keep the values of base. The codec is picked from the
// file extension via CodecFor.
//
// Layered setups resolve lower layers once at startup and hand the
// result to a Manager as its decode base, e.g. a system file overlaid
// by a watched user file:
//
//	base := config.Default()
//	if sys, err := config.LoadFile("/etc/bosun/config.toml", base); err == nil {
//	    base = sys
//	}
//	mgr := config.New(config.NewFileWatcher(userPath), handler).Base(base)
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, ReadError(path, err)
	}

	cfg := base
	if err := CodecFor(path).Unmarshal(data, &cfg); err != nil {
		return base, ParseError(path, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, ValidationError(err)
	}
	return cfg, nil
}

// CodecFor picks a codec from the file extension, defaulting to TOML.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONCodec{}
	case ".yaml", ".yml":
		return YAMLCodec{}
	default:
		return TOMLCodec{}
	}
}
