// Package ui renders the HTML pages of the job server.
package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is the view model of one job
type JobListItem struct {
	ID          string
	State       string
	RefPath     string
	Threads     int
	Iterations  int
	Rounds      int
	Accepted    uint64
	Loss        float64
	InitialLoss float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       string
}

// Improvement is the relative loss reduction in percent
func (j JobListItem) Improvement() float64 {
	if j.InitialLoss <= 0 {
		return 0
	}
	return (j.InitialLoss - j.Loss) / j.InitialLoss * 100
}

// Elapsed is the job running time rounded to seconds
func (j JobListItem) Elapsed() time.Duration {
	end := time.Now()
	if j.EndTime != nil {
		end = *j.EndTime
	}
	return end.Sub(j.StartTime).Round(time.Second)
}

const pageStyle = `body{font-family:sans-serif;margin:2em;background:#fafafa}
table{border-collapse:collapse}td,th{padding:.3em .8em;border-bottom:1px solid #ddd;text-align:left}
.state-running{color:#0a6}.state-failed{color:#c00}.state-cancelled{color:#888}
img{image-rendering:pixelated;max-width:45%;margin-right:1em;border:1px solid #ccc}`

// page wraps body in the shared HTML skeleton
func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// JobList renders the index page
func JobList(jobs []JobListItem) templ.Component {
	return page("circlez jobs", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>Jobs</h1>"); err != nil {
			return err
		}
		if len(jobs) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No jobs yet. POST to /api/v1/jobs to start one.</p>`)
			return err
		}

		if _, err := io.WriteString(w, "<table><thead><tr><th>ID</th><th>State</th><th>Target</th><th>Threads</th><th>Rounds</th><th>Loss</th><th>Improvement</th><th>Elapsed</th></tr></thead><tbody>"); err != nil {
			return err
		}
		for _, j := range jobs {
			if _, err := fmt.Fprintf(w,
				`<tr><td><a href="/jobs/%s">%s</a></td><td class="state-%s">%s</td><td>%s</td><td>%d</td><td>%d</td><td>%.0f</td><td>%.1f%%</td><td>%s</td></tr>`,
				templ.EscapeString(j.ID), templ.EscapeString(shortID(j.ID)),
				templ.EscapeString(j.State), templ.EscapeString(j.State),
				templ.EscapeString(j.RefPath), j.Threads, j.Rounds, j.Loss, j.Improvement(), j.Elapsed(),
			); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</tbody></table>")
		return err
	}))
}

// JobDetail renders one job with its live images. The page follows the
// job's SSE stream and reloads the images after every round.
func JobDetail(job JobListItem) templ.Component {
	return page("circlez job "+shortID(job.ID), templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		id := templ.EscapeString(job.ID)
		if _, err := fmt.Fprintf(w,
			`<p><a href="/">&larr; all jobs</a></p><h1>Job %s</h1>`+
				`<p>State: <span id="state" class="state-%s">%s</span> &middot; Target: %s &middot; Threads: %d &middot; Iterations/round: %d</p>`+
				`<p>Round <span id="rounds">%d</span> &middot; Loss <span id="loss">%.0f</span> &middot; Accepted <span id="accepted">%d</span></p>`,
			id, templ.EscapeString(job.State), templ.EscapeString(job.State),
			templ.EscapeString(job.RefPath), job.Threads, job.Iterations,
			job.Rounds, job.Loss, job.Accepted,
		); err != nil {
			return err
		}
		if job.Error != "" {
			if _, err := fmt.Fprintf(w, `<p class="state-failed">Error: %s</p>`, templ.EscapeString(job.Error)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w,
			`<div><img id="best" src="/api/v1/jobs/%[1]s/best.png" alt="approximation"><img id="diff" src="/api/v1/jobs/%[1]s/diff.png" alt="difference"></div>`+
				`<form method="post" action="/api/v1/jobs/%[1]s/cancel"><button type="submit">Cancel</button></form>`+
				`<script>
const es = new EventSource("/api/v1/jobs/%[1]s/stream");
es.onmessage = (m) => {
  const e = JSON.parse(m.data);
  document.getElementById("state").textContent = e.state;
  document.getElementById("rounds").textContent = e.rounds;
  document.getElementById("loss").textContent = Math.round(e.loss);
  document.getElementById("accepted").textContent = e.accepted;
  const t = Date.now();
  document.getElementById("best").src = "/api/v1/jobs/%[1]s/best.png?t=" + t;
  document.getElementById("diff").src = "/api/v1/jobs/%[1]s/diff.png?t=" + t;
  if (["completed", "failed", "cancelled"].includes(e.state)) es.close();
};
</script>`, id)
		return err
	}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
