package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/adapter/runtime"
	"github.com/xiaot623/gogo/streamer/internal/hub"
	"github.com/xiaot623/gogo/streamer/internal/repository"
	"github.com/xiaot623/gogo/streamer/internal/service"
	httpserver "github.com/xiaot623/gogo/streamer/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP streaming server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Print(ctx, log.KV{K: "msg", V: "starting streamer"}, log.KV{K: "http-port", V: cfg.HTTPPort},
		log.KV{K: "runtime", V: cfg.RuntimeURL}, log.KV{K: "database", V: cfg.DatabaseURL})

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	mapper, err := newMapper(ctx, cfg)
	if err != nil {
		return err
	}

	// Watch hub
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchers := hub.New(cfg.WatchBuffer)
	go watchers.Run(ctx)

	client := runtime.NewClient(cfg.RuntimeURL, cfg.RuntimeAPIKey)
	svc := service.New(db, client, mapper, watchers, cfg)
	e := httpserver.NewServer(svc, watchers, cfg)

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	log.Printf(ctx, "HTTP server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Print(ctx, log.KV{K: "msg", V: "shutting down streamer"})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "server shutdown error")
	}

	log.Print(ctx, log.KV{K: "msg", V: "streamer stopped"})
	return nil
}
