package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/kdmatch/match"
	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
)

// reportedError marks a failure whose diagnostic has already been written
// to the tool output.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// App encapsulates the application state and dependencies
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	// Publisher, when set, is used instead of connecting to the broker
	// named in the configuration.
	Publisher *match.Publisher

	stdin     []byte
	stdinRead bool
}

// NewApp creates a new App instance
func NewApp(stdin io.Reader, stdout io.Writer) *App {
	return &App{Stdin: stdin, Stdout: stdout}
}

// readStdin buffers standard input so that both catalogues may name "-".
func (a *App) readStdin() ([]byte, error) {
	if !a.stdinRead {
		a.stdinRead = true
		if a.Stdin != nil {
			data, err := io.ReadAll(a.Stdin)
			if err != nil {
				return nil, err
			}
			a.stdin = data
		}
	}
	return a.stdin, nil
}

// open loads a catalogue, reporting failures on the tool output.
func (a *App) open(path string, opts match.LoadOptions) (*match.Catalogue, error) {
	var stdin io.Reader
	if path == "-" {
		data, err := a.readStdin()
		if err != nil {
			fmt.Fprintf(a.Stdout, "# Unable to open %s: %v\n", path, err)
			return nil, &reportedError{err}
		}
		stdin = bytes.NewReader(data)
	}
	cat, err := match.OpenCatalogue(path, stdin, opts)
	if err != nil {
		fmt.Fprintf(a.Stdout, "# Unable to open %s: %v\n", path, err)
		return nil, &reportedError{err}
	}
	return cat, nil
}

// publisher returns the configured result publisher and a release func.
// Without a broker it returns nil.
func (a *App) publisher(cfg match.MQTTConfig) (*match.Publisher, func()) {
	if a.Publisher != nil {
		return a.Publisher, func() {}
	}
	client, resolved, err := match.ConnectMQTT(cfg, 10*time.Second)
	if err != nil {
		log.Printf("Warning: MQTT publishing disabled: %v", err)
		return nil, func() {}
	}
	if client == nil {
		return nil, func() {}
	}
	pub := match.NewPublisher(client, resolved.PublishPrefix)
	return pub, pub.Disconnect
}

// RunMatch runs an asterism matcher over two catalogue files.
func (a *App) RunMatch(opts MatchOptions) error {
	rep := match.NewReporter(a.Stdout, opts.Verbosity)
	rep.Comment(match.LevelDetail, "%s", strings.Join(opts.CommandLine, " "))
	rep.Comment(match.LevelDebug, "xcol1= %d ycol1= %d fs1= %q", opts.Load1.XCol, opts.Load1.YCol, opts.Load1.Separators)
	rep.Comment(match.LevelDebug, "xcol2= %d ycol2= %d fs2= %q", opts.Load2.XCol, opts.Load2.YCol, opts.Load2.Separators)
	rep.Comment(match.LevelDebug, "%s %s", opts.File1, opts.File2)

	cat1, err := a.open(opts.File1, opts.Load1)
	if err != nil {
		return err
	}
	cat2, err := a.open(opts.File2, opts.Load2)
	if err != nil {
		return err
	}

	m := &match.Matcher{Kind: opts.Kind, Params: opts.Params, Report: rep}
	res, err := m.Run(cat1.Points, cat2.Points)
	if err != nil {
		fmt.Fprintf(a.Stdout, "# %v\n", err)
		return &reportedError{err}
	}
	if err := match.WriteResult(a.Stdout, res); err != nil {
		return err
	}

	if opts.Plot.Output != "" {
		if err := writePlot(cat1, cat2, res, opts.Plot); err != nil {
			log.Printf("Warning: %v", err)
		} else {
			log.Printf("Wrote plot to %s", opts.Plot.Output)
		}
	}

	pub, release := a.publisher(opts.MQTT)
	defer release()
	if pub != nil {
		if err := pub.PublishResult(cat1.Name+" "+cat2.Name, res); err != nil {
			log.Printf("Warning: failed to publish %s result: %v", res.Variant, err)
		}
	}
	return nil
}

func writePlot(cat1, cat2 *match.Catalogue, res *match.Result, cfg match.PlotConfig) error {
	r := match.NewPlotRenderer(cat1.Points, cat2.Points, res)
	if cfg.Size > 0 {
		r.Size = cfg.Size
	}
	if cfg.Resolution > 0 {
		r.Resolution = canvas.DPI(cfg.Resolution * 25.4)
	}
	return r.WriteFile(cfg.Output)
}

// RunNearest cross-matches two catalogues that share a frame.
func (a *App) RunNearest(opts NearestOptions) error {
	fmt.Fprintf(a.Stdout, "# %s\n", strings.Join(opts.CommandLine, " "))
	rep := match.NewReporter(a.Stdout, opts.Verbosity)

	cat2, err := a.open(opts.File2, opts.Load2)
	if err != nil {
		return err
	}
	load1 := opts.Load1
	load1.Passthrough = a.Stdout
	cat1, err := a.open(opts.File1, load1)
	if err != nil {
		return err
	}

	report, err := match.MatchNearest(cat1, cat2, opts.Match)
	if err != nil {
		fmt.Fprintf(a.Stdout, "# %v\n", err)
		return &reportedError{err}
	}
	if report.Skipped > 0 {
		rep.Comment(match.LevelDetail, "%d rows of %s have no usable position", report.Skipped, cat2.Name)
	}
	if err := match.WriteNearest(a.Stdout, cat1, cat2, report, opts.Match); err != nil {
		return err
	}
	if n, mean, std := report.Summary(); n > 0 {
		rep.Comment(match.LevelDetail, "nearest distances: n= %d mean= %.6g std= %.6g", n, mean, std)
	}
	return nil
}

// RunReproject maps every row of a catalogue through a transform.
func (a *App) RunReproject(opts ReprojectOptions) error {
	r := a.Stdin
	if opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			fmt.Fprintf(a.Stdout, "# Unable to open %s: %v\n", opts.File, err)
			return &reportedError{err}
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		r = strings.NewReader("")
	}
	if _, err := match.ReprojectStream(a.Stdout, r, opts.Reproject); err != nil {
		return fmt.Errorf("%s: %w", opts.File, err)
	}
	return nil
}

// RunCalcTrans fits the affine map between row-aligned catalogues in both
// directions.
func (a *App) RunCalcTrans(opts CalcTransOptions) error {
	w := a.Stdout
	if opts.Verbosity > 0 {
		fmt.Fprintf(w, "# %s\n", strings.Join(opts.CommandLine, " "))
	}
	if opts.Verbosity > 1 {
		fmt.Fprintf(w, "# xcol1= %d\n# ycol1= %d\n# xcol2= %d\n# ycol2= %d\n", opts.Load1.XCol, opts.Load1.YCol, opts.Load2.XCol, opts.Load2.YCol)
		fmt.Fprintf(w, "# fs1= %q\n# fs2= %q\n# %s %s\n", opts.Load1.Separators, opts.Load2.Separators, opts.File1, opts.File2)
	}

	cat1, err := a.open(opts.File1, opts.Load1)
	if err != nil {
		return err
	}
	cat2, err := a.open(opts.File2, opts.Load2)
	if err != nil {
		return err
	}

	fwd, n, err := match.FitRows(cat1.Points, cat2.Points)
	if err != nil {
		fmt.Fprintf(w, "# Unable to fit %d rows: %v\n", n, err)
		return &reportedError{err}
	}
	rev, _, err := match.FitRows(cat2.Points, cat1.Points)
	if err != nil {
		fmt.Fprintf(w, "# Unable to fit %d rows: %v\n", n, err)
		return &reportedError{err}
	}
	if opts.Verbosity > 0 {
		fmt.Fprintf(w, "# fitted %d rows\n", n)
	}

	fmt.Fprintln(w, "Transforms from 1->2")
	writeFit(w, fwd, "1", "2", opts.Point)
	fmt.Fprintln(w, "Transforms from 2->1")
	writeFit(w, rev, "2", "1", opts.Point)
	return nil
}

func writeFit(w io.Writer, t match.AffineMatrix, from, to string, p *orb.Point) {
	fmt.Fprintf(w, "x%s = %.6g x%s + %.6g y%s + %.6g\n", to, t.A, from, t.B, from, t.Tx)
	if p != nil {
		fmt.Fprintf(w, "x%s = %.6g\n", to, match.TransformPoint(*p, t)[0])
	}
	fmt.Fprintf(w, "y%s = %.6g x%s + %.6g y%s + %.6g\n", to, t.C, from, t.D, from, t.Ty)
	if p != nil {
		fmt.Fprintf(w, "y%s = %.6g\n", to, match.TransformPoint(*p, t)[1])
	}
	fmt.Fprintln(w, t)
}

// RunServe runs the HTTP matching service until interrupted.
func (a *App) RunServe(opts ServeOptions) error {
	fmt.Fprintln(a.Stdout, "Starting kdmatch service...")

	var mqttCfg match.MQTTConfig
	if opts.Config != nil {
		mqttCfg = opts.Config.MQTT
	}
	pub, release := a.publisher(mqttCfg)
	defer release()

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", opts.HttpPort),
		Handler:           newHTTPServer(opts.Config, pub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Fprintln(a.Stdout, "\nService Running")
	fmt.Fprintln(a.Stdout, "===============")
	fmt.Fprintf(a.Stdout, "\nHTTP endpoints (port %d):\n", opts.HttpPort)
	fmt.Fprintln(a.Stdout, "  GET  /health           - Health check")
	fmt.Fprintln(a.Stdout, "  POST /match/{variant}  - Match two catalogues (pair, triangle, quad)")
	fmt.Fprintln(a.Stdout, "  GET  /metrics          - Prometheus metrics")
	if pub != nil {
		fmt.Fprintln(a.Stdout, "\nMQTT: publishing results to {prefix}/{variant}/result")
	}
	fmt.Fprintln(a.Stdout, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		return fmt.Errorf("[HTTP] server error: %w", err)
	case <-sigChan:
	}

	fmt.Fprintln(a.Stdout, "\nShutting down service...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	fmt.Fprintln(a.Stdout, "Service stopped")
	return nil
}
