package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/andradeandrey/mkvmux/internal/cluster"
	"github.com/andradeandrey/mkvmux/internal/control"
	"github.com/andradeandrey/mkvmux/internal/ebml/fake"
	"github.com/andradeandrey/mkvmux/internal/feed"
	"github.com/andradeandrey/mkvmux/internal/mxlog"
	"github.com/andradeandrey/mkvmux/internal/store"
	"github.com/andradeandrey/mkvmux/internal/web"
)

var serveListenAddr string
var serveJobName string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin RPC plane, cluster feed, and status dashboard",
	Long: "serve starts a Cluster Helper bound to the in-memory fake EBML sink and\n" +
		"exposes it over three surfaces: a JSON-RPC admin plane at /rpc, a\n" +
		"cluster-render monitor feed at /monitor, and an HTML status dashboard\n" +
		"at /status.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", ":8642", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveJobName, "job-name", "mux", "job name shown on the status dashboard")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfigFile(cmd); err != nil {
		return err
	}

	core := cluster.New(clusterConfig(), fake.Factory{}, struct{}{}, &fake.Cues{})
	core.SetOutput(fake.NewWriter(discardWriter{}))
	core.SetLogger(mxlog.New(flags.verbosity))

	f := feed.New()
	adminServer := control.NewServer(core, f)

	jobs := store.NewMemStore()
	job, err := jobs.NewJob(serveJobName)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", websocket.Handler(adminServer.RunRPC))
	mux.Handle("/monitor", websocket.Handler(func(ws *websocket.Conn) {
		control.Monitor(ws, f, cmd.Context().Done())
	}))
	mux.Handle("/status", web.StatusHandler(job.Name, core, f, func() []web.TrackCueView {
		return trackCueViews(jobs, job.ID)
	}))

	server := &http.Server{Addr: serveListenAddr, Handler: mux}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return server.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}

func trackCueViews(jobs store.JobStore, jobID string) []web.TrackCueView {
	job, err := jobs.GetJob(jobID)
	if err != nil {
		return nil
	}
	views := make([]web.TrackCueView, 0, len(job.TrackNames))
	for _, name := range job.TrackNames {
		tr, err := jobs.GetTrack(jobID, name)
		if err != nil {
			continue
		}
		views = append(views, web.TrackCueView{Name: tr.Name, LastCueTimecode: tr.FreeRefsMark})
	}
	return views
}

// discardWriter is an ebml.Writer sink for serve mode, which has no real
// output file to write to (it exists to drive the admin/feed/status
// surfaces, not to mux actual media).
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
