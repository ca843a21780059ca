package config

import "time"

const (
	DataDirName = ".mindcanvas"

	// AI request timeout
	RequestTimeout = 90 * time.Second

	// Model cache duration
	ModelCacheDuration = 1 * time.Hour

	// Tool loop depth per request
	MaxSteps = 5

	// Whole generation, tool steps included
	GenerationTimeout = 5 * time.Minute

	// Suggestions per requestSuggestions call
	MaxSuggestions = 5

	// Title generation
	TitleTimeout = 30 * time.Second
	MaxTitleLen  = 80

	// Storage mirror
	PersistTimeout   = 5 * time.Second
	PersistQueueSize = 1024

	// Stale stream cleanup interval
	StaleStreamCleanup = 60 * time.Second

	// Finished streams stay attachable for this long
	StreamReplayWindow = 5 * time.Minute

	// Artifact socket push cadence (one animation frame)
	ArtifactFrameInterval = 16 * time.Millisecond

	// Upload request body cap
	MaxUploadSize = 10 << 20

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// HTTP server
	ShutdownTimeout = 10 * time.Second
)
