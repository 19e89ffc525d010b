package expiry

import (
	"context"
	"encoding/json"

	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleExpiryTask runs the sweep for the asynq worker. Sweep failures are
// logged and recorded on the run, never retried by the queue.
func (s *Sweeper) HandleExpiryTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid expiry payload", zap.Error(err))
			return asynq.SkipRetry
		}
	}

	zap.L().Info("processing expiry task", zap.String("run_date", payload.RunDate))

	result, err := s.Run(ctx)
	if err != nil {
		fields := []zap.Field{zap.String("run_date", payload.RunDate), zap.Error(err)}
		if result != nil {
			fields = append(fields, zap.Int("failures", result.Failures))
		}
		zap.L().Error("expiry task finished with failures", fields...)
		return nil
	}

	zap.L().Info("finished expiry task",
		zap.String("run_date", payload.RunDate),
		zap.Int64("expired_coupons", result.ExpiredCount),
	)
	return nil
}

func registerHandlers(mux *asynq.ServeMux, s *Sweeper) {
	mux.HandleFunc(taskname.ExpirySweepRun, s.HandleExpiryTask)
}
