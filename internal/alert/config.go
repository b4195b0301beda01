package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // levels or event types to match
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id"`
	Turn       int    `json:"turn"`
	Stage      string `json:"stage"`
	Level      string `json:"level"`
	Signal     string `json:"signal"`
	Reason     string `json:"reason"`
	Tier       string `json:"tier"`
	ConfigHash string `json:"config_hash"`
	Type       string `json:"type,omitempty"` // "timeout_escalation", "session_terminated"
}
