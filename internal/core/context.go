package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "sync_trigger"

// Trigger names what started a sync run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerWatch     Trigger = "watch"
)

// ContextWithTrigger records what started the run carried by ctx.
func ContextWithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, t)
}

// TriggerFromContext returns the run trigger, defaulting to manual.
func TriggerFromContext(ctx context.Context) Trigger {
	if t, ok := ctx.Value(ctxKeyTrigger).(Trigger); ok {
		return t
	}
	return TriggerManual
}
