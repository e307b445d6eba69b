package logger

import "strings"

func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case DebugLevel:
		return DebugLevel
	case WarnLevel:
		return WarnLevel
	case ErrorLevel:
		return ErrorLevel
	case DisabledLevel:
		return DisabledLevel
	default:
		return InfoLevel
	}
}

func SetupLogger(logLevel string, logJSON, logSource bool) Logger {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(logLevel)
	cfg.JSON = logJSON
	cfg.AddSource = logSource
	return Init(cfg)
}
