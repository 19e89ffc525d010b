package notification

import (
	"context"
	"encoding/json"
	"time"

	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const queue = "default"

// Dispatcher hands reward events to the worker. Delivery is best effort: a
// notification that cannot be enqueued is logged and dropped.
type Dispatcher struct {
	enqueuer task.Enqueuer
}

type Params struct {
	fx.In
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{enqueuer: p.Enqueuer}
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

func traceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (d *Dispatcher) RewardIssued(ctx context.Context, p RewardIssuedPayload) {
	p.TraceID = traceID(ctx)
	d.dispatch(ctx, taskname.NotificationRewardIssued, "reward-"+p.CouponID, p)
}

func (d *Dispatcher) MilestoneGranted(ctx context.Context, p MilestoneGrantedPayload) {
	p.TraceID = traceID(ctx)
	d.dispatch(ctx, taskname.NotificationMilestoneGranted, "milestone-"+p.UserID, p)
}

func (d *Dispatcher) dispatch(ctx context.Context, typename, taskID string, payload any) {
	zapLog := logger(ctx).With(zap.String("task_type", typename))
	if d.enqueuer == nil {
		zapLog.Debug("notification enqueuer not configured, skipping")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zapLog.Error("failed to marshal notification payload", zap.Error(err))
		return
	}

	info, err := d.enqueuer.Enqueue(ctx,
		asynq.NewTask(typename, body),
		asynq.Queue(queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		zapLog.Warn("failed to enqueue notification", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	zapLog.Debug("enqueued notification", zap.String("task_id", info.ID))
}
