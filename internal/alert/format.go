package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("guardloop: %s", event.Level),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.SessionID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Turn:* %d (%s)", event.Turn, event.Stage)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Signal:* %s", event.Signal)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Level {
	case "hard_stop":
		severity = "critical"
	case "human_review":
		severity = "error"
	case "soft_stop":
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("guardloop %s: session %s", event.Level, event.SessionID),
			"severity": severity,
			"source":   "guardloop",
			"custom_details": map[string]any{
				"session_id": event.SessionID,
				"turn":       event.Turn,
				"stage":      event.Stage,
				"signal":     event.Signal,
				"reason":     event.Reason,
				"tier":       event.Tier,
			},
		},
	}
	return json.Marshal(payload)
}
