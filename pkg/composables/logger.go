package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/constants"
	"github.com/iota-uz/registrar/pkg/logging"
)

func WithLogger(ctx context.Context, log *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, log)
}

// UseLogger returns the request-scoped logger, or a discarding one.
func UseLogger(ctx context.Context) *logrus.Entry {
	if log, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && log != nil {
		return log
	}
	return logging.Nop()
}
