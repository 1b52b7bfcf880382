package main

import (
	"github.com/cityperks/backend/internal/config"
	"github.com/cityperks/backend/internal/database"
	"github.com/cityperks/backend/internal/handlers"
	"github.com/cityperks/backend/internal/jobs"
	"github.com/cityperks/backend/internal/queue"
	"github.com/cityperks/backend/internal/routes"
	"github.com/cityperks/backend/internal/services/ledger"
	"github.com/cityperks/backend/internal/services/notify"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/cityperks/backend/internal/services/program"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/cityperks/backend/internal/services/token"
	"github.com/cityperks/backend/internal/services/walletpush"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log := logrus.WithField("service", "loyalty-api")

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Services
	notifier := notify.NewService(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	passClient := walletpush.NewClient(cfg.WalletPush.Endpoint, cfg.WalletPush.Timeout)
	passSync := passsync.NewAdapter(db, passClient)
	tokens := token.NewService(db, cfg.Loyalty.TokenGrace)
	programs := program.NewService(db, notifier)
	redemptions := redemption.NewService(db, passSync, cfg.Loyalty.DisplayWindow)

	// Background work
	jobQueue := queue.NewQueue(db, redisClient)
	jobs.RegisterPassSyncHandlers(jobQueue, passSync)
	jobQueue.Start()
	defer jobQueue.Stop()

	ledgerSvc := ledger.NewService(db, tokens, redemptions, passSync, jobQueue)

	scheduler, err := jobs.ScheduleSweeps(redemptions)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule sweeps")
	}
	defer scheduler.Stop()

	// HTTP surface
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-CityPerks-City"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	programHandler := handlers.NewProgramHandler(programs, tokens, ledgerSvc, redemptions)
	publicHandler := handlers.NewPublicHandler(programs, ledgerSvc, redemptions)
	adminHandler := handlers.NewAdminHandler(programs, passSync, jobQueue)
	routes.RegisterRoutes(router, cfg, programHandler, publicHandler, adminHandler)

	log.WithField("port", cfg.Server.Port).Info("loyalty API server starting")
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}
