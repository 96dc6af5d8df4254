package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KingRainbow44/modpack-installer/internal/config"
	"github.com/KingRainbow44/modpack-installer/internal/launcher"
	"github.com/KingRainbow44/modpack-installer/internal/logger"
	"github.com/KingRainbow44/modpack-installer/internal/registry"
	"github.com/KingRainbow44/modpack-installer/internal/service"
	"github.com/KingRainbow44/modpack-installer/pkg/download"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type flags struct {
	server     bool
	configPath string
	manifest   string
	noProgress bool
}

func main() {
	// Accept the single-dash spelling of the server switch.
	for i, arg := range os.Args {
		if arg == "-server" {
			os.Args[i] = "--server"
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "modpack-installer",
		Short:         "Install a Fabric modpack from Modrinth",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", config.DefaultPath, "path to the configuration file")
	root.Flags().BoolVar(&f.server, "server", false, "install into the server directory instead of the launcher")
	root.Flags().StringVar(&f.manifest, "manifest", "", "manifest path, URL or git repository")
	root.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")

	root.AddCommand(newHistoryCmd(f))
	return root
}

func newHistoryCmd(f *flags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent install runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(f.configPath)
			if err != nil {
				return err
			}
			log, err := logger.InitLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := service.NewInstallService(cfg, log, registry.NewClient(), download.New(nil, cfg.Registry.UserAgent), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			runs, err := svc.Store().ListRuns(limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %s  target=%s server=%t downloaded=%d present=%d failed=%d\n",
					run.StartedAt.Format("2006-01-02 15:04:05"), run.Modpack, run.Version, run.Target,
					run.Server, run.Downloaded, run.Present, run.Failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func runInstall(ctx context.Context, f *flags) error {
	// Load configuration
	cfg, err := config.LoadFromFile(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return err
	}

	// Initialize logger
	log, err := logger.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := registry.NewClient(
		registry.WithBaseURL(cfg.Registry.BaseURL),
		registry.WithUserAgent(cfg.Registry.UserAgent),
		registry.WithRateLimit(cfg.Registry.RPS, cfg.Registry.Burst),
		registry.WithLogger(log),
	)
	dl := download.New(nil, cfg.Registry.UserAgent)

	var mc service.Launcher
	if !f.server {
		l, err := launcher.New(cfg.Launcher, dl, log)
		if err != nil {
			log.Error("failed to locate minecraft directory", zap.Error(err))
			return err
		}
		mc = l
	}

	// Initialize install service
	svc, err := service.NewInstallService(cfg, log, client, dl, mc)
	if err != nil {
		log.Error("failed to create install service", zap.Error(err))
		return err
	}
	defer svc.Close()

	opts := service.Options{
		Server:   f.server,
		Manifest: f.manifest,
	}
	if !f.noProgress {
		opts.Progress = os.Stderr
	}

	report, err := svc.Install(ctx, opts)
	switch {
	case errors.Is(err, service.ErrAlreadyInstalled):
		fmt.Println("Modpack already installed.")
		return nil
	case err != nil:
		log.Error("install failed", zap.Error(err))
		return err
	}

	if report.Failed > 0 {
		fmt.Printf("Modpack %s v%s installed with %d failure(s). See run %s.\n",
			report.Pack.Name, report.Pack.Version, report.Failed, report.RunID)
		return nil
	}
	fmt.Printf("Modpack %s v%s installed.\n", report.Pack.Name, report.Pack.Version)
	return nil
}
