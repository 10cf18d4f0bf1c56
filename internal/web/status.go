package web

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// StatusData feeds the /status page.
type StatusData struct {
	Jobs        []core.SyncJob
	Syncs       *core.SyncLimiterStatus
	WSClients   int
	GeneratedAt time.Time
}

const statusStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
table{border-collapse:collapse;width:100%}
th,td{border-bottom:1px solid #d9e2ec;padding:.4rem .6rem;text-align:left;font-size:.9rem}
th{background:#f0f4f8}
.backoff_scheduled{color:#b44d12}.running{color:#0b69a3}.muted{color:#829ab1}`

// StatusPage renders the job table as a standalone HTML page.
func StatusPage(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>sheetsync status</title><style>`+statusStyle+`</style></head><body>`); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<h1>Sync jobs</h1><p class="muted">%d scheduled, %d websocket clients, generated %s</p>`,
			len(data.Jobs), data.WSClients, templ.EscapeString(data.GeneratedAt.Format(time.RFC3339))); err != nil {
			return err
		}
		if data.Syncs != nil {
			if _, err := fmt.Fprintf(w, `<p>Manual syncs: %d running, %d of %d slots free</p>`,
				data.Syncs.Active, data.Syncs.Available, data.Syncs.MaxConcurrent); err != nil {
				return err
			}
		}
		if err := jobTable(data.Jobs).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func jobTable(jobs []core.SyncJob) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(jobs) == 0 {
			_, err := io.WriteString(w, `<p class="muted">No jobs scheduled.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>Project</th><th>Mode</th><th>Interval</th><th>State</th><th>Last run</th><th>Next run</th><th>Failures</th><th>Last error</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, j := range jobs {
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%d min</td><td class="%s">%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
				templ.EscapeString(j.ProjectID),
				templ.EscapeString(j.Mode),
				j.IntervalMinutes,
				templ.EscapeString(string(j.State)),
				templ.EscapeString(string(j.State)),
				formatRunTime(j.LastRun),
				formatRunTime(j.NextRun),
				j.ConsecutiveFailures,
				templ.EscapeString(j.LastError),
			); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}

func formatRunTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return templ.EscapeString(t.UTC().Format("2006-01-02 15:04:05Z"))
}
