package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Time logs the duration of an operation when the returned func is deferred
// with a pointer to the operation's error.
//
//	defer obs.Time(ctx, "invoice.Generate")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()
	log := FromContext(ctx)

	return func(errp *error) {
		fields := []zap.Field{
			zap.String("op", name),
			zap.Int64("dur_ms", time.Since(start).Milliseconds()),
		}

		if errp != nil && *errp != nil {
			log.Warn("op failed", append(fields, zap.Error(*errp))...)
			return
		}
		log.Debug("op done", fields...)
	}
}
