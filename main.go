package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cobrapyme/morosidad/internal/api"
	"cobrapyme/morosidad/internal/cache"
	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/db"
	"cobrapyme/morosidad/internal/email"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.EnsureIndexes(ctx, mongoDb); err != nil {
			cancel()
			log.Fatalf("Failed to ensure indexes: %v", err)
		}
		cancel()
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Initialize Email Sender
	var primaryEmailSender email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		primaryEmailSender = email.NewSMTPSender(cfg)
	}

	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)
	if cfg.EmailLogFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailLogFile)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender: %v. Proceeding without file logging.", err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}
	deliverySender := email.Sender(compositeSender)

	// Task client: the API enqueues email deliveries instead of blocking
	// requests on SMTP.
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	// Services shared by the background worker
	customerService := services.NewCustomerService(mongoDb)
	invoiceService := services.NewInvoiceService(mongoDb, cfg)
	reminderService := services.NewReminderService(mongoDb, cfg, deliverySender)

	taskProcessor := tasks.NewTaskProcessor(cfg, deliverySender, invoiceService, customerService, reminderService)

	var wg sync.WaitGroup
	var mainApiSrv *http.Server

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		apiEmailSender := tasks.NewAsynqEmailSender(taskClient)
		mainApiRouter := api.SetupRouter(cfg, mongoDb, redisClient, apiEmailSender)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Blocks until the process receives a signal; asynq installs its
			// own handler for SIGTERM/SIGINT.
			tasks.SetupServer(redisClient, taskProcessor)
			fmt.Println("Background task server stopped.")
		}()

		scheduler, err := tasks.NewScheduler(redisClient, cfg)
		if err != nil {
			log.Fatalf("Failed to build task scheduler: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Run(); err != nil {
				log.Fatalf("Task scheduler error: %v", err)
			}
			fmt.Println("Task scheduler stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("Shutdown signal received...")

	if mainApiSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mainApiSrv.Shutdown(ctx); err != nil {
			log.Printf("Main API shutdown error: %v", err)
		}
	}

	wg.Wait()
	fmt.Println("Application stopped.")
}
