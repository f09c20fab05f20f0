package handlers

import (
	"wellness-challenge-platform/middleware"
	"wellness-challenge-platform/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDistributorRoutes(app *fiber.App, distributorService *services.DistributorService) {
	// 🔓 Public pool snapshot — registered before the group middleware
	app.Get("/pools/:challenge_id", distributorService.GetPool)

	// 🔐 Pool management
	pools := app.Group("/pools", middleware.UserContextMiddleware())
	pools.Post("/", distributorService.InitializePoolEndpoint)
	pools.Post("/:challenge_id/winners", distributorService.RegisterWinnersEndpoint)
	pools.Post("/:challenge_id/distribute", distributorService.DistributeEndpoint)
	pools.Patch("/:challenge_id/balance", distributorService.UpdatePoolBalanceEndpoint)

	// 🔐 Authority + user rewards
	distributor := app.Group("/distributor", middleware.UserContextMiddleware())
	distributor.Post("/transfer", distributorService.SetDistributorEndpoint)

	rewards := app.Group("/rewards", middleware.UserContextMiddleware())
	rewards.Post("/claim", distributorService.ClaimEndpoint)

	users := app.Group("/users", middleware.UserContextMiddleware())
	users.Get("/me/rewards", distributorService.GetUserReward)
}
