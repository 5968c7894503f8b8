package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cchat/internal/config"
	"cchat/internal/database"
	"cchat/internal/handlers"
	"cchat/internal/logger"
	"cchat/internal/middleware"
	"cchat/internal/routes"
	"cchat/internal/utils"
	ws "cchat/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides server.port)")
	serveCmd.Flags().Bool("no-rate-limit", false, "disable request rate limiting")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		limits := middleware.DefaultLimits()
		if off, _ := cmd.Flags().GetBool("no-rate-limit"); off {
			limits = middleware.NoLimits()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, limits)
	},
}

// NewApp builds the fiber application around store.
func NewApp(cfg *config.Config, store database.Store, hub *ws.Hub, limits middleware.Limits, gatherer prometheus.Gatherer) *fiber.App {
	tokens := utils.NewTokenManager(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	if cfg.Server.JWTSecret == "" {
		logger.L.Warn("server.jwt_secret not set, tokens will not survive a restart")
	}

	app := fiber.New(fiber.Config{
		AppName: "cchat API v1",
	})

	// Middleware
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		// fiber refuses credentials with a wildcard origin
		AllowCredentials: cfg.Server.AllowOrigins != "*",
	}))

	routes.SetupRoutes(app, handlers.New(store, hub, tokens, logger.L), tokens, limits, gatherer)
	return app
}

func serve(ctx context.Context, cfg *config.Config, limits middleware.Limits) error {
	store, err := database.Connect(ctx, cfg.Server.DatabaseURL, logger.L)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub(store, ws.NewMetrics(reg), logger.L)
	go hub.Run(ctx)

	app := NewApp(cfg, store, hub, limits, reg)

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("server starting", "port", cfg.Server.Port)
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.L.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
