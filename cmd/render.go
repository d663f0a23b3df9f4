package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/config"
	"github.com/smazurov/pdfnode/internal/logging"
	"github.com/smazurov/pdfnode/internal/render"
	"github.com/smazurov/pdfnode/internal/service"
)

// CreateRenderCmd creates the render command.
func CreateRenderCmd() *cobra.Command {
	var (
		configFile      string
		backendCommand  string
		backendPort     int
		output          string
		format          string
		media           string
		pageRanges      string
		margin          float64
		landscape       bool
		printBackground bool
		timeout         time.Duration
		logJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "render [url-or-html-file]",
		Short: "Render a single page to PDF and exit",
		Long: `Starts a private browser instance, renders the given URL (or local HTML file) ` +
			`to PDF, writes the result to the output path and shuts the browser down.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			loggingConfig := config.LoadLoggingConfig(configFile)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("render-cmd")

			payload := &render.ChromePayload{
				Media:           media,
				Format:          format,
				PageRanges:      pageRanges,
				Landscape:       landscape,
				PrintBackground: printBackground,
				MarginTop:       margin,
				MarginRight:     margin,
				MarginBottom:    margin,
				MarginLeft:      margin,
			}

			// A readable local file is rendered as HTML; anything else
			// is treated as a URL.
			target := args[0]
			if data, err := os.ReadFile(target); err == nil {
				payload.HTML = string(data)
			} else if strings.Contains(target, "://") {
				payload.URL = target
			} else {
				logger.Error("Input is neither a readable file nor a URL", "input", target)
				os.Exit(1)
			}

			spec := browser.Spec{
				Command: backendCommand,
				Args: []string{
					"--headless",
					"--disable-gpu",
					"--no-sandbox",
					"--remote-debugging-port=" + browser.PortPlaceholder,
				},
				Readiness: browser.Readiness{Port: backendPort},
			}.WithDefaults()

			driver, err := browser.NewChromeDriver(spec, logging.GetLogger("browser"))
			if err != nil {
				logger.Error("Invalid backend configuration", "error", err)
				os.Exit(1)
			}

			renderer := render.NewChromeRenderer(render.ChromeOptions{PageTimeout: timeout})
			svc := service.New(service.Options[*render.ChromePayload, []byte]{
				Driver:        driver,
				Executor:      renderer,
				Backoff:       spec.Backoff,
				QueueCapacity: 1,
				Workers:       1,
				Size:          func(b []byte) int { return len(b) },
			})
			svc.Start()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			pdf, err := svc.Render(ctx, payload.Identity(), payload)

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = svc.Shutdown(stopCtx)
			_ = renderer.Close()
			stopCancel()

			if err != nil {
				logger.Error("Render failed", "error", err)
				// The buffer holds browser output the configured log
				// level may have suppressed; surface it for diagnosis.
				for _, entry := range logging.GetBuffer().ReadAll() {
					if entry.Module == "browser" {
						fmt.Fprintf(os.Stderr, "%s [%s] %s\n",
							entry.Timestamp.Format(time.TimeOnly), entry.Level, entry.Message)
					}
				}
				os.Exit(1)
			}
			if err := os.WriteFile(output, pdf, 0o644); err != nil {
				logger.Error("Failed to write output", "error", err, "path", output)
				os.Exit(1)
			}
			logger.Info("Rendered", "output", output, "bytes", len(pdf))
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.toml", "Config file providing the [logging] table")
	cmd.Flags().StringVar(&backendCommand, "backend", "chromium", "Browser executable to launch")
	cmd.Flags().IntVar(&backendPort, "port", 9222, "DevTools port probed for readiness")
	cmd.Flags().StringVarP(&output, "output", "o", "out.pdf", "Output PDF path")
	cmd.Flags().StringVar(&format, "format", "A4", "Paper format (Letter, Legal, A0-A6, ...)")
	cmd.Flags().StringVar(&media, "media", "", "Emulated CSS media type (screen, print)")
	cmd.Flags().StringVar(&pageRanges, "page-ranges", "", "Pages to print, e.g. 1-3,5")
	cmd.Flags().Float64Var(&margin, "margin", 0, "Page margin on all sides, in inches")
	cmd.Flags().BoolVar(&landscape, "landscape", false, "Landscape orientation")
	cmd.Flags().BoolVar(&printBackground, "print-background", false, "Print background graphics")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall render deadline")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
