package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"findash/internal/agenda"
	"findash/internal/capture"
	"findash/internal/chat"
	"findash/internal/config"
	"findash/internal/diag"
	"findash/internal/ics"
	appLog "findash/internal/log"
	"findash/internal/present"
	"findash/internal/source"
	"findash/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	envFile    string
	snapshot   string
}

func main() {
	appLog.Info("findash starting", "version", version)

	flags := parseFlags()

	if _, err := maxprocs.Set(); err != nil {
		appLog.Error("failed to set GOMAXPROCS", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.SetFormat(conf.LogFormat)

	secrets, err := config.LoadSecrets(flags.envFile)
	if err != nil {
		appLog.Error("failed to load secrets", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	if secrets.OpenAIAPIKey == "" {
		appLog.Info("OPENAI_API_KEY is not set; chat requests will fail upstream")
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"fetch_timeout_seconds", conf.FetchTimeoutSeconds,
		"probe_cron", conf.ProbeCron,
		"source_count", len(conf.Sources),
		"chat_model", conf.Chat.Model,
		"snapshot", flags.snapshot,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, secrets, flags); err != nil {
		appLog.Error("findash exited with error", err)
		os.Exit(1)
	}
	appLog.Info("findash exiting")
}

func run(ctx context.Context, conf *config.Config, secrets config.Secrets, flags flagConfig) error {
	loc := conf.Location()

	registry := diag.NewRegistry()
	svc := &agenda.Service{
		Builder: source.Builder{
			Fetcher:   ics.NewFetcher(nil, conf.FetchTimeout()),
			NewLister: source.GoogleListerFactory(secrets.GoogleAPIKey),
		},
		Sources:  conf.Sources,
		Location: loc,
		Timeout:  conf.FetchTimeout(),
		Recorder: registry,
	}

	relay := chat.NewRelay(chat.NewOpenAIClient(secrets.OpenAIAPIKey, conf.Chat.BaseURL), chat.Config{
		Model:       conf.Chat.Model,
		Temperature: conf.Chat.SamplingTemperature(),
		MaxTokens:   conf.Chat.MaxTokens,
		Timeout:     conf.ChatTimeout(),
	})

	renderer, err := present.New(loc)
	if err != nil {
		return err
	}

	srv := web.NewServer(web.Deps{
		Week:     svc,
		Chat:     relay,
		Status:   registry,
		Renderer: renderer,
		Finance:  conf.FinanceSnapshot(),
	})

	if flags.snapshot != "" {
		return runSnapshot(ctx, srv, conf.Listen, flags.snapshot)
	}

	if conf.ProbeCron != config.ProbeOff {
		prober, err := diag.NewProber(conf.ProbeCron, loc, conf.FetchTimeout()+5*time.Second, svc.Probe)
		if err != nil {
			return err
		}
		prober.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			prober.Stop(stopCtx)
		}()
	}

	return srv.Run(ctx, conf.Listen)
}

// runSnapshot serves the dashboard just long enough to capture it.
func runSnapshot(ctx context.Context, srv *web.Server, listen, out string) error {
	srvCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(srvCtx, listen) }()

	// Give the listener a moment to bind.
	time.Sleep(200 * time.Millisecond)

	captureErr := capture.DashboardPNG(ctx, capture.Options{
		URL:        "http://" + dialAddr(listen) + "/",
		OutputPath: out,
	})
	stop()

	if err := <-errCh; err != nil {
		return errors.Join(captureErr, fmt.Errorf("snapshot server: %w", err))
	}
	if captureErr != nil {
		return captureErr
	}
	appLog.Info("dashboard snapshot written", "path", out)
	return nil
}

// dialAddr turns a wildcard listen address into one a browser can reach.
func dialAddr(listen string) string {
	switch {
	case strings.HasPrefix(listen, ":"):
		return "127.0.0.1" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return listen
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./findash.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to .env file with API keys")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Render the dashboard to this PNG path and exit")

	flag.Parse()

	return cfg
}
