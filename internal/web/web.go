// Package web renders a small HTML status dashboard (active cluster count,
// bytes written, per-track cue watermark) for one mux job. The dashboard
// template is embedded as a string constant and parsed once; there is no
// on-disk template directory to hot-reload.
package web

import (
	"html/template"
	"net/http"
	"time"

	"github.com/oxtoacart/bpool"

	"github.com/andradeandrey/mkvmux/internal/cluster"
	"github.com/andradeandrey/mkvmux/internal/feed"
	"github.com/andradeandrey/mkvmux/internal/packet"
)

var bufpool = bpool.NewBufferPool(64)

const statusHTML = `<!DOCTYPE html>
<html><head><title>{{.JobName}} - mux status</title></head>
<body>
<h1>{{.JobName}}</h1>
<p>File #{{.FileNum}}, {{.BytesWritten}} bytes written, {{.ClusterCount}} clusters retained.</p>
<p>{{.ViewerCount}} feed viewer(s) connected.</p>
<table>
<tr><th>Track</th><th>Last cue timecode</th></tr>
{{range .Tracks}}<tr><td>{{.Name}}</td><td>{{.LastCueTimecode}}</td></tr>
{{end}}
</table>
<p>Generated {{.GeneratedAt}}</p>
</body></html>
`

var statusTemplate = template.Must(template.New("status").Parse(statusHTML))

// Page executes tpl with data into a pooled buffer, then flushes the buffer
// to w so a template error never leaves a half-written response.
func Page(w http.ResponseWriter, code int, tpl *template.Template, data interface{}) error {
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if err := tpl.Execute(buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, err := buf.WriteTo(w)
	return err
}

// TrackCueView is one row of the dashboard's per-track cue table.
type TrackCueView struct {
	Name            string
	LastCueTimecode packet.Timecode
}

// StatusView is the dashboard's view model.
type StatusView struct {
	JobName      string
	FileNum      uint32
	BytesWritten int64
	ClusterCount int
	ViewerCount  int
	Tracks       []TrackCueView
	GeneratedAt  time.Time
}

// TrackLister supplies the per-track rows for the dashboard; the core has
// no track registry of its own (that's internal/store's job), so the
// handler is parameterized over however the caller tracks its sources.
type TrackLister func() []TrackCueView

// StatusHandler renders jobName's dashboard from core's live diagnostics and
// f's connected viewer count.
func StatusHandler(jobName string, core *cluster.Helper, f *feed.Feed, tracks TrackLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		view := StatusView{
			JobName:      jobName,
			FileNum:      core.FileNum(),
			BytesWritten: core.BytesInFile(),
			ClusterCount: core.ClusterCount(),
			GeneratedAt:  time.Now(),
		}
		if f != nil {
			view.ViewerCount = f.ViewerCount()
		}
		if tracks != nil {
			view.Tracks = tracks()
		}

		if err := Page(w, http.StatusOK, statusTemplate, view); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
