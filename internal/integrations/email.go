package integrations

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepwise-engine/stepwise/internal/engine"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// Email returns a handler that simulates a SendGrid-style email provider.
// The "send" action requires "to" and "subject"; "body" is optional.
func Email(logger *slog.Logger) engine.Handler {
	return func(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
		if action != "send" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "email: unsupported action %q", action)
		}
		to, _ := params["to"].(string)
		if to == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "email: missing param \"to\"")
		}
		subject, _ := params["subject"].(string)
		if subject == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "email: missing param \"subject\"")
		}

		messageID := uuid.NewString()
		logger.InfoContext(ctx, "email sent", "to", to, "subject", subject, "message_id", messageID)

		return map[string]any{
			"status":     "sent",
			"message_id": messageID,
			"to":         to,
			"subject":    subject,
			"sent_at":    time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}
