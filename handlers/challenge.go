package handlers

import (
	"wellness-challenge-platform/middleware"
	"wellness-challenge-platform/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, factoryService *services.FactoryService, challengeService *services.ChallengeService) {
	// 🔓 Public read-only queries — registered before the group middleware so
	// they never pass through the user-context check
	app.Get("/challenges/by-name/:name", factoryService.GetChallengeByName)
	app.Get("/challenges/:id", challengeService.GetChallenge)
	app.Get("/challenges/:id/participants/:user_id", challengeService.GetParticipant)
	app.Get("/challenges/:id/votes", challengeService.GetVotes)

	// 🔐 Factory admin
	factory := app.Group("/factory", middleware.UserContextMiddleware())
	factory.Post("/pause", factoryService.PauseEndpoint)
	factory.Post("/resume", factoryService.ResumeEndpoint)
	factory.Post("/admin", factoryService.TransferAdminEndpoint)
	factory.Post("/max-challenges", factoryService.SetMaxChallengesEndpoint)

	// 🔐 Challenge creation + lifecycle
	challenges := app.Group("/challenges", middleware.UserContextMiddleware())
	challenges.Post("/", factoryService.CreateChallengeEndpoint)
	challenges.Post("/:id/initialize", challengeService.InitializeEndpoint)
	challenges.Post("/:id/join", challengeService.JoinEndpoint)
	challenges.Post("/:id/progress", challengeService.SubmitProgressEndpoint)
	challenges.Post("/:id/votes", challengeService.VoteEndpoint)
	challenges.Post("/:id/end", challengeService.EndEndpoint)
	challenges.Post("/:id/penalties", challengeService.ApplyPenaltyEndpoint)
	challenges.Post("/:id/claim", challengeService.ClaimEndpoint)
	challenges.Post("/:id/oracle", challengeService.SetOracleEndpoint)
}
