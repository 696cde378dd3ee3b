package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeSessionExpire = "session:expire"

type ExpirePayload struct {
	SessionID string `json:"session_id"`
}

// scheduleExpiry enqueues the passive expiry sweep for a new session. Lazy
// touch-checks remain authoritative; the task only cleans up sessions nobody
// touches again.
func (s *Service) scheduleExpiry(ctx context.Context, sess *EarningSession) {
	if s.tasks == nil {
		return
	}

	payload, err := json.Marshal(ExpirePayload{SessionID: sess.ID})
	if err != nil {
		return
	}

	delay := sess.GraceDeadline.Sub(s.nowFn().UTC()) + time.Second
	if _, err := s.tasks.EnqueueContext(ctx, asynq.NewTask(TypeSessionExpire, payload), asynq.ProcessIn(delay)); err != nil {
		zap.L().Warn("failed to enqueue expiry task", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// ExpireIfDue applies the lazy expiry check to one session. Missing sessions
// are a no-op so stale tasks drain cleanly.
func (s *Service) ExpireIfDue(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	if err := s.advance(ctx, sess, s.nowFn().UTC()); err != nil {
		return err
	}

	if sess.State == StateExpired {
		zap.L().Info("session expired by sweep", zap.String("session_id", sessionID))
	}

	return nil
}

var TaskModule = fx.Module("task.session",
	fx.Provide(NewTask),
	fx.Invoke(registerTaskHandlers),
)

type Task struct {
	svc *Service
}

func NewTask(svc *Service) *Task {
	return &Task{svc: svc}
}

func (t *Task) HandleSessionExpire(ctx context.Context, task *asynq.Task) error {
	var payload ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	return t.svc.ExpireIfDue(ctx, payload.SessionID)
}

func registerTaskHandlers(mux *asynq.ServeMux, task *Task) {
	mux.HandleFunc(TypeSessionExpire, task.HandleSessionExpire)
}
