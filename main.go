package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wellness-challenge-platform/handlers"
	"wellness-challenge-platform/middleware"
	"wellness-challenge-platform/models"
	"wellness-challenge-platform/services"
	"wellness-challenge-platform/utils"
	"wellness-challenge-platform/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — cover photos only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-Block-Height",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Challenge{},
		&models.Participant{},
		&models.ExtensionVote{},
		&models.ChallengePool{},
		&models.RewardTier{},
		&models.PoolWinner{},
		&models.UserReward{},
		&models.DistributionLog{},
		&models.LedgerIntent{},
		&models.FactoryState{},
		&models.DistributorState{},
		&models.ChainState{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	factoryService := services.NewFactoryService(db)
	challengeService := services.NewChallengeService(db)
	distributorService := services.NewDistributorService(db)
	chainService := services.NewChainService(db)

	// --- Bootstrap singleton authority records ---
	factoryAdmin := os.Getenv("FACTORY_ADMIN")
	if factoryAdmin == "" {
		log.Fatal("FACTORY_ADMIN environment variable not set")
	}
	distributor := os.Getenv("REWARD_DISTRIBUTOR")
	if distributor == "" {
		log.Fatal("REWARD_DISTRIBUTOR environment variable not set")
	}
	maxChallenges := int64(1000)
	if raw := os.Getenv("MAX_CHALLENGES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			log.Fatal("MAX_CHALLENGES must be a positive integer")
		}
		maxChallenges = n
	}
	if err := factoryService.EnsureState(factoryAdmin, maxChallenges); err != nil {
		log.Fatal("failed to ensure factory state:", err)
	}
	if err := distributorService.EnsureState(distributor); err != nil {
		log.Fatal("failed to ensure distributor state:", err)
	}
	if err := chainService.EnsureState(); err != nil {
		log.Fatal("failed to ensure chain state:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Background: ledger intent dispatch + chain height refresh ---
	intentWorker := workers.NewIntentDispatchWorker(db)
	go intentWorker.Run(ctx, 10*time.Second)
	chainService.StartHeightScheduler()

	handlers.SetupChallengeRoutes(app, factoryService, challengeService)
	handlers.SetupDistributorRoutes(app, distributorService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Ledger intent dispatch worker running (every 10s)")
	log.Println("✅ Chain height refresh scheduled (every 30s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
