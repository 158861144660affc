package relay

import (
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"socketmode/internal/protocol"
)

// subtypeOf names what an app event carries: the inner event type for
// events_api, the interaction type for interactive and the command for
// slash_commands.
func subtypeOf(typ string, payload json.RawMessage) (string, error) {
	switch typ {
	case protocol.TypeEventsAPI:
		ev, err := slackevents.ParseEvent(payload, slackevents.OptionNoVerifyToken())
		if err != nil {
			// Inner event types slack-go does not model still carry a usable
			// type field.
			var fallback struct {
				Type  string `json:"type"`
				Event struct {
					Type string `json:"type"`
				} `json:"event"`
			}
			if jerr := json.Unmarshal(payload, &fallback); jerr != nil || fallback.Event.Type == "" {
				return "", fmt.Errorf("decode events_api payload: %w", err)
			}
			return fallback.Event.Type, nil
		}
		if ev.Type == slackevents.CallbackEvent {
			return ev.InnerEvent.Type, nil
		}
		return ev.Type, nil
	case protocol.TypeInteractive:
		var cb slack.InteractionCallback
		if err := json.Unmarshal(payload, &cb); err != nil {
			return "", fmt.Errorf("decode interactive payload: %w", err)
		}
		return string(cb.Type), nil
	case protocol.TypeSlashCommands:
		var cmd slack.SlashCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return "", fmt.Errorf("decode slash command payload: %w", err)
		}
		return cmd.Command, nil
	default:
		return "", nil
	}
}
