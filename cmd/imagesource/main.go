// Command imagesource decodes image files on a shared scheduler and reports
// what each simulated observer received.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ygrebnov/imagesource"
	"github.com/ygrebnov/imagesource/codec"
	"github.com/ygrebnov/imagesource/logging"
	"github.com/ygrebnov/imagesource/metrics"
	"github.com/ygrebnov/imagesource/scheduler"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "imagesource:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "imagesource",
		Usage:     "decode images for many observers on a shared worker pool",
		ArgsUsage: "FILE...",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.UintFlag{Name: "workers", Aliases: []string{"w"}, Usage: "decode workers"},
			&cli.UintFlag{Name: "queue-size", Usage: "admissions that may wait for a worker"},
			&cli.IntFlag{Name: "observers", Aliases: []string{"n"}, Usage: "observers subscribed per file"},
			&cli.IntFlag{Name: "band-height", Usage: "rows per progress block"},
			&cli.IntFlag{Name: "max-pixels", Usage: "reject images larger than this"},
			&cli.StringFlag{Name: "trust-tag", Usage: "trust tag every observer subscribes with"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address while running"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowAppHelp(c)
	}
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)
	if err := validateCLIConfig(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	pm := metrics.NewPrometheus(reg, "")
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	sched, err := scheduler.New(ctx,
		scheduler.WithFixedPool(cfg.Workers),
		scheduler.WithQueueSize(cfg.QueueSize),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(pm),
		scheduler.WithStartImmediately(),
	)
	if err != nil {
		return err
	}
	defer sched.Close()

	cache := imagesource.NewCache(
		imagesource.WithScheduler(sched),
		imagesource.WithCodec(codec.NewImage(codec.WithBandHeight(cfg.BandHeight), codec.WithMaxPixels(cfg.MaxPixels))),
		imagesource.WithLogger(logger),
		imagesource.WithMetrics(pm),
	)
	defer cache.Close()

	reports := make([]*report, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		src, err := cache.Get(path, fileOpener(path))
		if err != nil {
			return err
		}
		r := newReport(path, src, cfg.Observers)
		for _, o := range r.observers {
			if err := src.StartProduction(o, imagesource.TrustTag(cfg.TrustTag)); err != nil {
				logger.Warn("subscribe failed", "file", path, "error", err)
			}
		}
		reports = append(reports, r)
	}

	failed := 0
	for _, r := range reports {
		if err := r.wait(ctx); err != nil {
			return err
		}
		r.print(c.App.Writer)
		if r.failures() > 0 {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files had failing observers", failed, len(reports))
	}
	return nil
}

func newLogger(cfg Config, w io.Writer) (logging.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{ForceColors: isTerminal(w), DisableColors: !isTerminal(w), FullTimestamp: true})
	}
	return logging.NewLogrus(l), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func metricsRouter(reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) func() {
	srv := &http.Server{Addr: addr, Handler: metricsRouter(reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func fileOpener(path string) imagesource.Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// report collects what the observers of one file received.
type report struct {
	path      string
	src       *imagesource.Source
	observers []*fileObserver
	wg        sync.WaitGroup
}

func newReport(path string, src *imagesource.Source, n int) *report {
	r := &report{path: path, src: src, observers: make([]*fileObserver, n)}
	r.wg.Add(n)
	for i := range r.observers {
		r.observers[i] = &fileObserver{done: r.wg.Done}
	}
	return r
}

func (r *report) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *report) failures() int {
	n := 0
	for _, o := range r.observers {
		if o.snapshot().err != nil {
			n++
		}
	}
	return n
}

func (r *report) print(w io.Writer) {
	ok := len(r.observers) - r.failures()
	if res, decoded := r.src.Result(); decoded {
		b := res.Image.Bounds()
		fmt.Fprintf(w, "%s: %s %dx%d in %d blocks, %d/%d observers completed\n",
			r.path, res.Format, b.Dx(), b.Dy(), res.Blocks, ok, len(r.observers))
	} else {
		fmt.Fprintf(w, "%s: %d/%d observers completed\n", r.path, ok, len(r.observers))
	}
	for i, o := range r.observers {
		if st := o.snapshot(); st.err != nil {
			fmt.Fprintf(w, "  observer %d: %v (reload=%t)\n", i, st.err, st.reload)
		}
	}
}

// fileObserver counts progress and records the terminal outcome.
type fileObserver struct {
	mu     sync.Mutex
	state  observerState
	done   func()
	closed bool
}

type observerState struct {
	rows   int
	err    error
	reload bool
}

func (o *fileObserver) OnProgress(b codec.Block) {
	o.mu.Lock()
	o.state.rows += b.Bounds.Dy()
	o.mu.Unlock()
}

func (o *fileObserver) OnCompleted() { o.finish(nil, false) }

func (o *fileObserver) OnError(err error, needsReload bool) { o.finish(err, needsReload) }

func (o *fileObserver) finish(err error, reload bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.state.err, o.state.reload = err, reload
	o.mu.Unlock()
	o.done()
}

func (o *fileObserver) snapshot() observerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
