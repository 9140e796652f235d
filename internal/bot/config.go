package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Number of scripts returned for a plain-text search
	SearchResultLimit int
	// Long polling timeout in seconds
	UpdateTimeout int
	// Upper bound for handling a single update
	HandlerTimeout time.Duration
	// Maximum accepted size of an uploaded script library
	MaxImportBytes int64
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		SearchResultLimit: 5,
		UpdateTimeout:     60,
		HandlerTimeout:    30 * time.Second,
		MaxImportBytes:    10 << 20,
	}
}
