package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"weekcal/internal/config"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/period"
	"weekcal/internal/refresh"
	"weekcal/internal/scheduler"
	"weekcal/internal/source"
	"weekcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	days       int
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	} else {
		appLog.Warn("unknown log level, using INFO", "log_level", conf.LogLevel)
	}
	appLog.Info("weekcal starting", "version", "0.1.0")

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"period", conf.Period,
		"week_start", conf.WeekStart,
		"min_hour", conf.MinHour,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"event_count", len(conf.Events),
		"once", flags.once,
	)

	loc := conf.Location()
	indexer, err := period.New(conf.Period, conf.FirstWeekday(), loc)
	if err != nil {
		appLog.Error("invalid period", err, "period", conf.Period)
		os.Exit(1)
	}

	loader, invalidate, err := buildLoader(conf, indexer, loc)
	if err != nil {
		appLog.Error("failed to build event loader", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sched := scheduler.New(nil, scheduler.Options{
		Index:   indexer.Index,
		Loader:  loader,
		MinHour: conf.MinHour,
		Metrics: metrics.New(reg),
	})
	refresher := refresh.Targets{refresh.Func(invalidate), sched}

	srv := web.NewServer(conf, sched, web.Options{
		Refresh:  refresher,
		Gatherer: reg,
	})

	if flags.once {
		if err := runOnce(srv, conf, flags); err != nil {
			appLog.Error("single-shot layout failed", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := refresh.Start(conf.RefreshCron, refresher)
	if err != nil {
		appLog.Error("failed to start refresh schedule", err)
		os.Exit(1)
	}
	defer c.Stop()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("http server failed", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http server shutdown", err)
	}
	appLog.Info("weekcal exiting")
}

// buildLoader picks the event sources named by the config. ICS feeds and
// inline events are merged when both are present. The returned func drops
// any memoised feed data.
func buildLoader(conf *config.Config, indexer period.Indexer, loc *time.Location) (scheduler.Loader, func(), error) {
	inline, err := conf.InlineEvents(loc)
	if err != nil {
		return nil, nil, err
	}
	static := source.NewStatic(indexer, inline)
	if len(conf.ICS) == 0 {
		return static, func() {}, nil
	}

	feeds := make([]ics.Feed, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		feeds = append(feeds, ics.Feed{ID: c.SourceID(), URL: c.URL})
	}
	icsLoader := ics.NewLoader(ics.NewFetcher(conf.CacheDir, nil), feeds, indexer, ics.LoaderOptions{Location: loc})
	if len(inline) == 0 {
		return icsLoader, icsLoader.Invalidate, nil
	}
	return source.Merge{icsLoader, static}, icsLoader.Invalidate, nil
}

func runOnce(srv *web.Server, conf *config.Config, flags flagConfig) error {
	days := flags.days
	if days <= 0 {
		days = conf.VisibleDays
	}
	if days > 42 {
		return fmt.Errorf("days %d out of range (max 42)", days)
	}
	start, err := srv.RangeStart(flags.date)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	resp, err := srv.Layout(ctx, start, days)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/weekcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the layout of the requested days as JSON and exit")
	flag.StringVar(&cfg.date, "date", "", "First day for -once (YYYY-MM-DD, default: start of this week)")
	flag.IntVar(&cfg.days, "days", 0, "Number of days for -once (default: config visible_days)")

	flag.Parse()

	return cfg
}
