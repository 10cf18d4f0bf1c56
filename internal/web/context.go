package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// syncContext detaches a manual sync from the client connection while
// keeping request values such as the request id.
func syncContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := core.ContextWithTrigger(context.WithoutCancel(r.Context()), core.TriggerManual)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
