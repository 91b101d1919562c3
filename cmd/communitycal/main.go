package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"communitycal/internal/caldate"
	"communitycal/internal/capture"
	"communitycal/internal/config"
	"communitycal/internal/ics"
	appLog "communitycal/internal/log"
	"communitycal/internal/metrics"
	"communitycal/internal/model"
	"communitycal/internal/store"
	"communitycal/internal/view"
	"communitycal/internal/web"
)

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	printOut   string
	printDate  string
}

func main() {
	appLog.Info("communitycal starting", "version", "0.1.0")

	flags := parseFlags()

	if err := config.LoadEnvFile(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "env_path", flags.envPath)
		os.Exit(1)
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
	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"language", conf.Language,
		"refresh", conf.RefreshCron,
		"snapshot", conf.Snapshot,
		"ics_count", len(conf.ICS),
		"metrics", conf.Metrics,
		"trust_identity_headers", conf.TrustIdentityHeaders,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	loc := conf.Location()
	live := view.NewLive(loc)

	poller := store.NewPoller(buildSources(conf, loc)...)
	unsubscribe := poller.Subscribe(func(s model.Snapshot) {
		live.OnSnapshot(s)
		metrics.SetSnapshot(len(live.Events()), live.UpdatedAt())
	})
	defer unsubscribe()

	if err := poller.Start(ctx, conf.RefreshCron, loc); err != nil {
		appLog.Error("failed to start refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	defer poller.Stop()

	srv := web.NewServer(conf, live)

	if flags.printOut != "" {
		if err := printOnce(ctx, cancel, conf, srv, flags); err != nil {
			appLog.Error("print export failed", err, "out", flags.printOut)
			os.Exit(1)
		}
		return
	}

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("HTTP server stopped", err)
		os.Exit(1)
	}
	appLog.Info("communitycal exiting")
}

func buildSources(conf *config.Config, loc *time.Location) []store.Source {
	var sources []store.Source
	if conf.Snapshot != "" {
		sources = append(sources, store.FileSource{Path: conf.Snapshot})
	}
	if len(conf.ICS) == 0 {
		return sources
	}
	fetcher := ics.NewFetcher(conf.CacheDir, nil)
	for _, c := range conf.ICS {
		sources = append(sources, &ics.Source{
			Feed: ics.Feed{
				ID:         c.ID,
				Name:       c.Name,
				URL:        c.URL,
				CategoryID: c.CategoryID,
				Settlement: c.Settlement,
			},
			Fetcher:      fetcher,
			Location:     loc,
			HorizonDays:  conf.HorizonDays,
			BackfillDays: conf.BackfillDays,
		})
	}
	return sources
}

// printOnce serves the print page locally, captures it to a PNG and stops.
func printOnce(ctx context.Context, cancel context.CancelFunc, conf *config.Config, srv *web.Server, flags flagConfig) error {
	// Bind before capturing so the browser never reaches another process
	// holding the port.
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	target, err := capture.PrintURL(localBase(ln.Addr()), caldate.Parse(flags.printDate))
	if err != nil {
		cancel()
		<-errCh
		return err
	}
	opts := capture.Options{
		URL:        target,
		OutputPath: flags.printOut,
		Width:      conf.Print.Width,
		Height:     conf.Print.Height,
		Timeout:    time.Duration(conf.Print.TimeoutSeconds) * time.Second,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}

	captureErr := capture.PrintPNG(ctx, opts)
	cancel()
	if err := <-errCh; err != nil {
		appLog.Warn("print server stopped with error", "err", err)
	}
	if captureErr == nil {
		appLog.Info("print export written", "out", flags.printOut, "url", target)
	}
	return captureErr
}

// localBase is the loopback URL of a listener, also when it is bound to all
// interfaces.
func localBase(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp.IP == nil || tcp.IP.IsUnspecified() {
		_, port, _ := net.SplitHostPort(addr.String())
		return "http://" + net.JoinHostPort("127.0.0.1", port)
	}
	return "http://" + tcp.String()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/communitycal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.printOut, "print", "", "Write the printable month to this PNG and exit")
	flag.StringVar(&cfg.printDate, "print-date", "", "Date (YYYY-MM-DD) inside the month to print; default today")

	flag.Parse()

	return cfg
}
