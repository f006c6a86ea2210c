// Package integrations provides the built-in integration handlers that ship
// with the engine: sms and email senders (mock transports, the shape real
// provider adapters plug into) and a jq-based transform integration.
package integrations

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepwise-engine/stepwise/internal/engine"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// SMS returns a handler that simulates a Twilio-style SMS provider. The
// "send" action requires "to" and "message" params and reports a message sid
// plus a segment count derived from the GSM-7 160-char limit.
func SMS(logger *slog.Logger) engine.Handler {
	return func(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
		if action != "send" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "sms: unsupported action %q", action)
		}
		to, _ := params["to"].(string)
		if to == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "sms: missing param \"to\"")
		}
		message, _ := params["message"].(string)
		if message == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "sms: missing param \"message\"")
		}

		segments := (len(message) + 159) / 160
		sid := "SM" + uuid.NewString()
		logger.InfoContext(ctx, "sms sent", "to", to, "sid", sid, "segments", segments)

		return map[string]any{
			"status":   "sent",
			"sid":      sid,
			"to":       to,
			"segments": segments,
			"sent_at":  time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}
