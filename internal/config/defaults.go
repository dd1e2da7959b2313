package config

import (
	"os"

	"github.com/pagevoice/pagevoice/internal/ledger"
)

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		NATS: NATSConfig{
			URL:        "nats://127.0.0.1:4222",
			BlobBucket: "pagevoice-blobs",
		},
		Store: StoreConfig{
			SQLitePath: "pagevoice.db",
		},
		Costs: ledger.DefaultCosts(),
		Limits: LimitsConfig{
			MaxPagesPerBatch: 50,
			MaxUploadBytes:   100 << 20,
			MergeTimeoutSec:  120,
			FetchConcurrency: 8,
		},
		TTS: TTSConfig{
			URL:        "http://127.0.0.1:8000",
			Language:   "en",
			TimeoutSec: 90,
		},
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
