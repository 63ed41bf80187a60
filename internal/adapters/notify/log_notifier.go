package notify

import (
	"context"
	"package-billing-service/internal/platform/obs"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the request logger. Used when no
// Redis address is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	env, err := newEnvelope(userID, event, payload, nil)
	if err != nil {
		return err
	}
	obs.FromContext(ctx).Info("notification",
		zap.String("id", env.ID),
		zap.String("event", env.Event),
		zap.String("user_id", env.UserID),
		zap.Any("payload", env.Payload),
	)
	return nil
}
