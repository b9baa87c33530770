package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// TaskHash identifies a task definition. Maps marshal with sorted keys, so
// kwargs order does not matter.
func TaskHash(t TaskConfig) uint64 {
	b, err := json.Marshal(t)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
