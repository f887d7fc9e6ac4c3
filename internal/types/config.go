package types

type RunMode string

const (
	// ModeLocal is the mode for running the API server, the dispatcher and the scheduler in one process
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running just the API server
	ModeAPI RunMode = "api"
	// ModeWorker is the mode for running just the dispatcher and scheduler
	ModeWorker RunMode = "worker"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)
