package audit

// Entry is one line in the hash-chained JSONL decision log. All fields
// are flat scalars (no map[string]any) so json.Marshal field order is
// deterministic and the chain hash reproducible.
type Entry struct {
	Timestamp  string `json:"ts"`
	SessionID  string `json:"session_id"`
	Turn       int    `json:"turn"`
	Stage      string `json:"stage"`
	Level      string `json:"level"`
	Signal     string `json:"signal"`
	Reason     string `json:"reason"`
	ReleasedBy string `json:"released_by,omitempty"`
	ConfigHash string `json:"config_hash"`
	PrevHash   string `json:"prev_hash"`
}
