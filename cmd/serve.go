package cmd

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"journal-gamification/handlers"
	"journal-gamification/middleware"
	"journal-gamification/services"
	"journal-gamification/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveNoConsumer bool
	serveNoRerank   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP read side, the trade event consumer and the periodic re-ranker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoConsumer, "no-consumer", false, "do not consume trade events even when RABBITMQ_URL is set")
	serveCmd.Flags().BoolVar(&serveNoRerank, "no-rerank", false, "disable the periodic re-ranker")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.logger

	if rt.cfg.Server.ServiceToken == "" {
		return errors.New("GAME_SERVICE_TOKEN is not set; the service cannot authenticate the gateway")
	}

	app := newApp(rt.engine, rt.cfg.Server.ServiceToken, rt.cfg.Server.AllowedOrigins, log)

	if !serveNoRerank {
		scheduler := services.NewRerankScheduler(rt.engine, rt.cfg.Engine.RerankInterval, log)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	if rt.cfg.RabbitMQ.URL != "" && !serveNoConsumer {
		consumer := workers.NewTradeEventConsumer(rt.cfg.RabbitMQ.URL, rt.cfg.RabbitMQ.Queue, rt.engine, log)
		consumer.Start(ctx)
		defer consumer.Stop()
	} else {
		log.Info("trade event consumer disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(rt.cfg.Server.Addr)
	}()
	log.Info("server running", zap.String("addr", rt.cfg.Server.Addr))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info("shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newApp(engine *services.Engine, serviceToken string, origins []string, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	handlers.SetupMetricsRoute(app)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := engine.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use(middleware.GatewayAuthMiddleware(serviceToken, log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))
	handlers.SetupProgressionRoutes(app, engine, log)
	return app
}
