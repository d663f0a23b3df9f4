package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	_ "go.uber.org/automaxprocs"

	"github.com/smazurov/pdfnode/cmd"
	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/config"
	"github.com/smazurov/pdfnode/internal/events"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/render"
	"github.com/smazurov/pdfnode/internal/service"
	"github.com/smazurov/pdfnode/internal/systemd"
	"github.com/smazurov/pdfnode/internal/worker"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Backend settings
	BackendCommand          string   `help:"Browser executable" default:"chromium" toml:"backend.command" env:"BACKEND_COMMAND"`
	BackendArgs             []string `help:"Extra browser arguments" toml:"backend.args" env:"BACKEND_ARGS"`
	BackendPort             int      `help:"DevTools port probed for readiness" default:"9222" toml:"backend.port" env:"BACKEND_PORT"`
	BackendReadinessTimeout string   `help:"Time allowed for the browser to become ready" default:"10s" toml:"backend.readiness_timeout" env:"BACKEND_READINESS_TIMEOUT"`
	BackendGracefulTimeout  string   `help:"Grace period before force-killing the browser" default:"5s" toml:"backend.graceful_timeout" env:"BACKEND_GRACEFUL_TIMEOUT"`

	// Restart backoff settings
	BackoffInitial    string  `help:"First restart delay" default:"500ms" toml:"backoff.initial" env:"BACKOFF_INITIAL"`
	BackoffMax        string  `help:"Restart delay ceiling" default:"30s" toml:"backoff.max" env:"BACKOFF_MAX"`
	BackoffMultiplier float64 `help:"Restart delay growth factor" default:"2.0" toml:"backoff.multiplier" env:"BACKOFF_MULTIPLIER"`

	// Queue settings
	QueueCapacity int `help:"Maximum buffered rendering tasks" default:"30" toml:"queue.capacity" env:"QUEUE_CAPACITY"`

	// Worker settings
	WorkerCount        int    `help:"Worker pool size (0 = auto)" default:"0" toml:"worker.count" env:"WORKER_COUNT"`
	WorkerEndpointWait string `help:"Per-task wait for a live browser" default:"15s" toml:"worker.endpoint_wait" env:"WORKER_ENDPOINT_WAIT"`
	WorkerPageTimeout  string `help:"Per-page load and print budget" default:"60s" toml:"worker.page_timeout" env:"WORKER_PAGE_TIMEOUT"`

	// Shutdown settings
	ShutdownTimeout string `help:"Drain budget on shutdown" default:"30s" toml:"shutdown.timeout" env:"SHUTDOWN_TIMEOUT"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBrowser   string `help:"Browser process logging level" default:"info" toml:"logging.browser" env:"LOGGING_BROWSER"`
	LoggingSupervise string `help:"Supervisor logging level" default:"info" toml:"logging.supervise" env:"LOGGING_SUPERVISE"`
	LoggingQueue     string `help:"Queue logging level" default:"info" toml:"logging.queue" env:"LOGGING_QUEUE"`
	LoggingWorker    string `help:"Worker pool logging level" default:"info" toml:"logging.worker" env:"LOGGING_WORKER"`
	LoggingRender    string `help:"Renderer logging level" default:"info" toml:"logging.render" env:"LOGGING_RENDER"`
}

// defaultBackendArgs are applied when no args are configured. The port
// placeholder is filled from the readiness port.
var defaultBackendArgs = []string{
	"--headless",
	"--disable-gpu",
	"--no-sandbox",
	"--remote-debugging-port=" + browser.PortPlaceholder,
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// The root command carries the parsed flags; passing it lets
		// explicitly set flags win over TOML and environment values.
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"browser":   opts.LoggingBrowser,
				"supervise": opts.LoggingSupervise,
				"queue":     opts.LoggingQueue,
				"worker":    opts.LoggingWorker,
				"render":    opts.LoggingRender,
			},
		})
		logger := logging.GetLogger("main")

		args := opts.BackendArgs
		if len(args) == 0 {
			args = defaultBackendArgs
		}
		spec := browser.Spec{
			Command: opts.BackendCommand,
			Args:    args,
			Readiness: browser.Readiness{
				Port:    opts.BackendPort,
				Timeout: parseDuration(opts.BackendReadinessTimeout, browser.DefaultReadinessTimeout),
			},
			Backoff: browser.Backoff{
				Initial:    parseDuration(opts.BackoffInitial, browser.DefaultBackoffInitial),
				Max:        parseDuration(opts.BackoffMax, browser.DefaultBackoffMax),
				Multiplier: opts.BackoffMultiplier,
			},
			GracefulTimeout: parseDuration(opts.BackendGracefulTimeout, browser.DefaultGracefulTimeout),
		}.WithDefaults()

		driver, err := browser.NewChromeDriver(spec, logging.GetLogger("browser"))
		if err != nil {
			logger.Error("Invalid backend configuration", "error", err)
			os.Exit(1)
		}

		renderer := render.NewChromeRenderer(render.ChromeOptions{
			PageTimeout: parseDuration(opts.WorkerPageTimeout, render.DefaultPageTimeout),
		})

		bus := events.New()
		svc := service.New(service.Options[*render.ChromePayload, []byte]{
			Driver:        driver,
			Executor:      renderer,
			Backoff:       spec.Backoff,
			QueueCapacity: opts.QueueCapacity,
			Workers:       worker.ResolvePoolSize(opts.WorkerCount),
			EndpointWait:  parseDuration(opts.WorkerEndpointWait, worker.DefaultEndpointWait),
			Size:          func(b []byte) int { return len(b) },
			Bus:           bus,
		})

		done := make(chan struct{})

		hooks.OnStart(func() {
			logger.Info("Starting pdfnode",
				"backend", spec.Command,
				"port", spec.Readiness.Port,
				"queue_capacity", opts.QueueCapacity)
			svc.Start()
			systemd.NotifyReady(logger)
			<-done
		})

		hooks.OnStop(func() {
			systemd.NotifyStopping(logger)

			ctx, cancel := context.WithTimeout(context.Background(),
				parseDuration(opts.ShutdownTimeout, 30*time.Second))
			defer cancel()

			if stopErr := svc.Shutdown(ctx); stopErr != nil {
				logger.Error("Shutdown did not complete cleanly", "error", stopErr)
			}
			if closeErr := renderer.Close(); closeErr != nil {
				logger.Warn("Error closing renderer connection", "error", closeErr)
			}
			close(done)
		})
	})

	// Add one-shot render command
	cli.Root().AddCommand(cmd.CreateRenderCmd())

	// Add version command
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}

// parseDuration parses a duration option, falling back when empty or
// malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
