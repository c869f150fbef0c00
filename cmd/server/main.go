package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "channelpress/configs"
	"channelpress/internal/api/handlers"
	"channelpress/internal/api/middleware"
	"channelpress/internal/auth"
	"channelpress/internal/channel"
	job "channelpress/internal/jobs"
	"channelpress/internal/platform"
	"channelpress/internal/posts"
	"channelpress/internal/publisher"
	"channelpress/internal/queue"
	"channelpress/internal/repository"
	"channelpress/internal/storage"
	"channelpress/pkg/crypto"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cipher, err := crypto.NewCipher([]byte(cfg.CipherKey))
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	resolver, err := storage.NewR2Resolver(*cfg)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	channelRepo := repository.NewChannelRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	postRepo := repository.NewPostRepository(db)
	scheduledRepo := repository.NewScheduledPostRepository(db)
	metricsRepo := repository.NewMetricsRepository(db)

	registry := channel.NewRegistry()
	registry.Register(platform.X, &channel.Manager{
		Authenticator: auth.NewXAuthenticator(cfg.XConsumerKey, cfg.XConsumerSecret, cfg.XRedirectURI),
		Publisher:     publisher.NewXPublisher(cfg.XConsumerKey, cfg.XConsumerSecret, resolver),
	})
	registry.Register(platform.Facebook, &channel.Manager{
		Authenticator: auth.NewFacebookAuthenticator(cfg.FacebookClientID, cfg.FacebookClientSecret, cfg.FacebookRedirectURI),
		Publisher:     publisher.NewFacebookPublisher(resolver),
	})
	registry.Register(platform.Instagram, &channel.Manager{
		Authenticator: auth.NewInstagramAuthenticator(cfg.InstagramClientID, cfg.InstagramClientSecret, cfg.InstagramRedirectURI),
		Publisher:     publisher.NewInstagramPublisher(resolver),
	})
	registry.Register(platform.TikTok, &channel.Manager{
		Authenticator: auth.NewTikTokAuthenticator(cfg.TiktokClientKey, cfg.TiktokClientSecret, cfg.TiktokRedirectURI),
		Publisher:     publisher.NewTikTokPublisher(resolver),
	})
	registry.Register(platform.YouTube, &channel.Manager{
		Authenticator: auth.NewGoogleAuthenticator(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI),
		Publisher:     publisher.NewYouTubePublisher(resolver),
	})
	registry.Register(platform.LinkedIn, &channel.Manager{
		Authenticator: auth.NewLinkedInAuthenticator(cfg.LinkedinClientID, cfg.LinkedinClientSecret, cfg.LinkedinRedirectURI),
		Publisher:     publisher.NewLinkedInPublisher(resolver),
	})

	states := auth.NewStateManager(cfg.SecretKey, 10*time.Minute)
	channelService := channel.NewService(db, registry, states, cipher, channelRepo, integrationRepo, scheduledRepo)
	postService := posts.NewService(db, postRepo, scheduledRepo, channelRepo, metricsRepo)

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	ch := handlers.NewChannelHandler(channelService, registry, cfg)
	api.Get("/channels/auth/:platform", ch.ConnectChannel)
	app.Get("/channels/auth/:platform/callback", ch.CallbackHandler)
	api.Get("/channels", ch.ListChannels)
	api.Post("/channels/:id/deactivate", ch.DeactivateChannel)
	api.Delete("/channels/:id", ch.DeleteChannel)
	api.Get("/platforms", ch.ListCapabilities)

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.SchedulePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/scheduled/:id", post.ScheduledStatus)
	api.Post("/posts/remove", post.RemovePost)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(integrationRepo, registry, cipher)
	metricsSyncJob := job.NewMetricsSyncJob(scheduledRepo, channelRepo, integrationRepo, metricsRepo, registry, cipher)

	// queue
	queueW := queue.NewQueue(scheduledRepo, postRepo, channelRepo, integrationRepo, registry, cipher)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 01h00m00s", metricsSyncJob.SyncMetrics)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
