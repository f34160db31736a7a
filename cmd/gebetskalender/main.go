package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"gebetskalender/internal/config"
	appLog "gebetskalender/internal/log"
	"gebetskalender/internal/pipeline"
	"gebetskalender/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	envPath     string
	logLevel    string
	writeConfig string
	daemon      bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one invocation and returns the process exit code: 0 on a
// written calendar or a no-op, 1 on any failure, 2 on bad flags.
func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		return 2
	}

	if lvl, ok := appLog.ParseLevel(flags.logLevel); ok {
		appLog.SetLevel(lvl)
	}

	appLog.Info("gebetskalender starting", "version", "0.1.0")

	if err := config.LoadEnvFile(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "env_path", flags.envPath)
		return 1
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("failed to apply environment overrides", err)
		return 1
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("config validation failed", err)
		return 1
	}

	if flags.writeConfig != "" {
		if err := config.Save(flags.writeConfig, conf); err != nil {
			appLog.Error("failed to write config", err, "path", flags.writeConfig)
			return 1
		}
		appLog.Info("config written", "path", flags.writeConfig)
		return 0
	}

	loc, _ := conf.Location()
	now := time.Now()
	appLog.Info("effective config",
		"date", now.In(loc).Format("02.01.2006"),
		"timezone", conf.Timezone,
		"system_time", now.UTC().Format(time.RFC3339),
		"zoned_time", now.In(loc).Format(time.RFC3339),
		"source", conf.Source.URL,
		"fetcher", conf.Source.Fetcher,
		"output", conf.OutputPath(),
		"stable_uids", conf.StableUIDs,
		"refresh", conf.Refresh,
		"listen", conf.Listen,
	)

	runner, err := pipeline.FromConfig(conf, nil)
	if err != nil {
		appLog.Error("failed to build pipeline", err)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !flags.daemon && conf.Refresh == "" {
		if _, err := runner.Run(ctx); err != nil {
			appLog.Error("run failed", err)
			return 1
		}
		return 0
	}

	return runDaemon(ctx, conf, runner)
}

// runDaemon runs once immediately, then on every refresh tick until ctx is
// canceled. Failed ticks are logged; the next tick tries again.
func runDaemon(ctx context.Context, conf *config.Config, runner *pipeline.Runner) int {
	if _, err := runner.Run(ctx); err != nil {
		appLog.Error("initial run failed", err)
	}

	schedule := conf.Refresh
	if schedule == "" {
		schedule = "5 0 * * *"
	}

	loc, _ := conf.Location()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := runner.Run(ctx); err != nil {
			appLog.Error("scheduled run failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", schedule)
		return 1
	}
	c.Start()
	appLog.Info("scheduler started", "refresh", schedule, "timezone", conf.Timezone)

	if conf.Listen != "" {
		srv := web.NewServer(runner, conf.OutputPath())
		go func() {
			if err := web.Serve(ctx, conf.Listen, srv.Handler()); err != nil {
				appLog.Error("http server stopped", err, "listen", conf.Listen)
			}
		}()
	}

	<-ctx.Done()
	appLog.Info("signal received, shutting down")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		appLog.Warn("scheduled run still in progress at shutdown")
	}

	appLog.Info("gebetskalender exiting")
	return 0
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("gebetskalender", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (defaults apply if empty or missing)")
	fs.StringVar(&cfg.envPath, "env", ".env", "Path to env file with GEBETSKALENDER_* overrides")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.writeConfig, "write-config", "", "Write the effective config to this path and exit")
	fs.BoolVar(&cfg.daemon, "daemon", false, "Keep running and regenerate on the refresh schedule")

	err := fs.Parse(args)
	return cfg, err
}
