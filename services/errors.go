package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Every validation failure is returned to the caller as one of these kinds
// with no partial mutation. Nothing here is fatal to the process.
var (
	ErrNotAuthorized = errors.New("not authorized")

	// field validation
	ErrInvalidName            = errors.New("name must be 1-100 characters")
	ErrInvalidGoal            = errors.New("goal must be positive")
	ErrInvalidDuration        = errors.New("duration must be positive")
	ErrInvalidMinContribution = errors.New("minimum contribution must be positive")
	ErrInvalidMaxParticipants = errors.New("max participants must be between 1 and 100")
	ErrInvalidChallengeType   = errors.New("unsupported challenge type")
	ErrInvalidPenaltyRate     = errors.New("penalty rate must not exceed 100")
	ErrInvalidVotingThreshold = errors.New("voting threshold must be between 1 and 100")
	ErrInvalidLocation        = errors.New("location must be 1-100 characters")
	ErrInvalidCurrency        = errors.New("unsupported currency")
	ErrInvalidUpdateParam     = errors.New("invalid update parameter")

	// factory
	ErrFactoryLocked         = errors.New("factory is paused")
	ErrMaxChallengesExceeded = errors.New("maximum challenge count reached")
	ErrNameTaken             = errors.New("challenge name already taken")

	// lifecycle
	ErrChallengeNotFound        = errors.New("challenge not found")
	ErrAlreadyInitialized       = errors.New("challenge already initialized")
	ErrChallengeNotActive       = errors.New("challenge is not active")
	ErrChallengeEnded           = errors.New("challenge has ended")
	ErrAlreadyJoined            = errors.New("already joined this challenge")
	ErrNotJoined                = errors.New("not a participant of this challenge")
	ErrInsufficientContribution = errors.New("contribution below minimum")
	ErrMaxParticipantsExceeded  = errors.New("challenge roster is full")
	ErrInvalidProgress          = errors.New("progress cannot decrease")
	ErrInvalidEndTime           = errors.New("challenge end height not reached")
	ErrInvalidStatus            = errors.New("operation not allowed for participant status")
	ErrRewardAlreadyClaimed     = errors.New("reward already claimed")

	// distribution
	ErrPoolNotFound             = errors.New("reward pool not found")
	ErrPoolExists               = errors.New("reward pool already exists")
	ErrPoolActive               = errors.New("reward pool still open")
	ErrPoolClosed               = errors.New("reward pool closed for registration")
	ErrPoolLocked               = errors.New("reward pool is locked")
	ErrEmptyRewardTiers         = errors.New("reward tiers must not be empty")
	ErrInvalidPercentage        = errors.New("tier percentage must be between 0 and 100")
	ErrInvalidTierRange         = errors.New("tier rank range is invalid")
	ErrPercentSumExceeds100     = errors.New("tier percentages exceed 100")
	ErrRewardAlreadyDistributed = errors.New("rewards already distributed")
	ErrDistributionCompleted    = errors.New("distribution already completed")
	ErrInsufficientPool         = errors.New("pool balance is empty")
	ErrNoRewardsAvailable       = errors.New("no rewards available")
)

// errorStatus maps an error kind to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return fiber.StatusForbidden
	case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrPoolNotFound),
		errors.Is(err, ErrNotJoined), errors.Is(err, ErrNoRewardsAvailable):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrPoolExists),
		errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrRewardAlreadyClaimed), errors.Is(err, ErrRewardAlreadyDistributed),
		errors.Is(err, ErrDistributionCompleted), errors.Is(err, ErrChallengeNotActive),
		errors.Is(err, ErrChallengeEnded), errors.Is(err, ErrPoolActive),
		errors.Is(err, ErrPoolClosed), errors.Is(err, ErrPoolLocked),
		errors.Is(err, ErrFactoryLocked), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidEndTime), errors.Is(err, ErrMaxParticipantsExceeded):
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

// respondErr renders a structured error kind as a JSON response, or a 500 for
// anything unexpected (DB failures and the like).
func respondErr(c *fiber.Ctx, err error) error {
	if known(err) {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

var knownErrors = []error{
	ErrNotAuthorized, ErrInvalidName, ErrInvalidGoal, ErrInvalidDuration,
	ErrInvalidMinContribution, ErrInvalidMaxParticipants, ErrInvalidChallengeType,
	ErrInvalidPenaltyRate, ErrInvalidVotingThreshold, ErrInvalidLocation,
	ErrInvalidCurrency, ErrInvalidUpdateParam, ErrFactoryLocked,
	ErrMaxChallengesExceeded, ErrNameTaken, ErrChallengeNotFound,
	ErrAlreadyInitialized, ErrChallengeNotActive, ErrChallengeEnded,
	ErrAlreadyJoined, ErrNotJoined, ErrInsufficientContribution,
	ErrMaxParticipantsExceeded, ErrInvalidProgress, ErrInvalidEndTime, ErrInvalidStatus,
	ErrRewardAlreadyClaimed, ErrPoolNotFound, ErrPoolExists, ErrPoolActive,
	ErrPoolClosed, ErrPoolLocked, ErrEmptyRewardTiers, ErrInvalidPercentage,
	ErrInvalidTierRange, ErrPercentSumExceeds100, ErrRewardAlreadyDistributed,
	ErrDistributionCompleted, ErrInsufficientPool, ErrNoRewardsAvailable,
}

func known(err error) bool {
	for _, e := range knownErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
