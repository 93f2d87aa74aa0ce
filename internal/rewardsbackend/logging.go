package rewardsbackend

import (
	"context"

	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"go.uber.org/zap"
)

type operationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger adapts a zap logger to the service's operation
// callback. Failed operations log at warn with the error attached.
func NewOperationLogger(logger *zap.Logger) rewards.OperationLogger {
	return &operationLogger{logger: logger}
}

func (adapter *operationLogger) LogOperation(_ context.Context, entry rewards.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("account", entry.Account.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("detail", entry.Detail),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		adapter.logger.Warn("rewards operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("rewards operation", fields...)
}
