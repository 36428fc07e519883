package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/api"
	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/common/config"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/internal/notify"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/internal/stream"
	"github.com/gotify-desk/deskd/pkg/logger"
	"github.com/gotify-desk/deskd/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of deskd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deskd version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "deskd",
		Short: "Gotify desktop client engine",
		Long:  `deskd keeps a live stream session to a Gotify server, maintains the local message cache and serves the local control API`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DESKD_CONF"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "deskd", "config.yaml")
}

func run() {
	cfgPath := getConfigPath()
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	zapLogger, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting deskd",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	store, err := settings.NewFileStore(zapLogger, cfg.Storage.DataDir)
	if err != nil {
		zapLogger.Fatal("failed to initialize settings store", zap.Error(err))
	}

	bus := event.NewBus(zapLogger)
	meta := message.NewMetaMap()
	msgCache := cache.NewCache(zapLogger, cfg.Storage.DataDir, store.DesiredCacheLimit, bus)
	msgCache.Load()

	gate := notify.NewGate(zapLogger, store, notify.NewZapNotifier(zapLogger))
	state := stream.NewState(bus)
	sup := stream.NewSupervisor(zapLogger, cfg.Stream, state, store, msgCache, meta, bus, gate)

	// Auto-start when credentials are already configured.
	if stored, readErr := store.Read(); readErr == nil &&
		stored.BaseURL != "" && strings.TrimSpace(stored.Token) != "" {
		if startErr := sup.Start(""); startErr != nil {
			zapLogger.Warn("stream auto-start failed", zap.Error(startErr))
		}
	}

	router := api.NewRouter(zapLogger, sup, msgCache, store, bus)
	srv := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: router,
	}

	go func() {
		zapLogger.Info("control API listening", zap.String("addr", cfg.API.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("control API failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	sup.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("failed to shut down control API", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
