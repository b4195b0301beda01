package guardloop

import "log/slog"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath  string
	profileName string
	sensitivity float64
	auditPath   string
	eventsPath  string
	logger      *slog.Logger
}

// WithConfig sets the path to a sensitivity config YAML file.
func WithConfig(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithProfile sets the safeguard profile (e.g., "pre_mid_post").
func WithProfile(name string) Option {
	return func(c *clientConfig) { c.profileName = name }
}

// WithSensitivity overrides the config file's base sensitivity.
func WithSensitivity(v float64) Option {
	return func(c *clientConfig) { c.sensitivity = v }
}

// WithAuditLog enables the hash-chained decision log at path.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditPath = path }
}

// WithEvents enables the JSONL telemetry stream at path.
func WithEvents(path string) Option {
	return func(c *clientConfig) { c.eventsPath = path }
}

// WithLogger sets the structured logger for operational messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}
