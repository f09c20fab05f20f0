package services

import (
	"errors"
	"log"

	"wellness-challenge-platform/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// instance-side allowed sets; narrower than the factory's on purpose
var (
	instanceChallengeTypes = map[models.ChallengeType]bool{
		models.ChallengeTypeFitness:    true,
		models.ChallengeTypeMeditation: true,
		models.ChallengeTypeReading:    true,
	}
	instanceCurrencies = map[models.Currency]bool{
		models.CurrencyUSDC: true,
		models.CurrencyBTC:  true,
	}
)

// completionReward is the flat payout per completer for the single-challenge
// claim path. Pool-proportional payouts go through the distributor instead.
const completionReward int64 = 100

var typeCaser = cases.Title(language.English)

type ChallengeService struct {
	DB *gorm.DB
}

func NewChallengeService(db *gorm.DB) *ChallengeService {
	return &ChallengeService{DB: db}
}

// InitializeInput re-supplies the full config. The factory already validated
// these fields, but the controller validates again rather than trusting it.
type InitializeInput struct {
	Goal            int64
	Duration        int64
	MinContribution int64
	MaxParticipants int
	ChallengeType   models.ChallengeType
	PenaltyRate     int64
	VotingThreshold int64
	Location        string
	Currency        models.Currency
}

// Initialize activates a minted challenge. Creator only. Fixes the start and
// end heights; neither is ever recomputed afterwards.
func (s *ChallengeService) Initialize(challengeID, caller string, height int64, in InitializeInput) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if caller != ch.Creator {
			return ErrNotAuthorized
		}
		if ch.Initialized {
			return ErrAlreadyInitialized
		}
		if in.Goal <= 0 {
			return ErrInvalidGoal
		}
		if in.Duration <= 0 {
			return ErrInvalidDuration
		}
		if in.MinContribution <= 0 {
			return ErrInvalidMinContribution
		}
		if in.MaxParticipants <= 0 || in.MaxParticipants > 100 {
			return ErrInvalidMaxParticipants
		}
		if !instanceChallengeTypes[in.ChallengeType] {
			return ErrInvalidChallengeType
		}
		if in.PenaltyRate < 0 || in.PenaltyRate > 100 {
			return ErrInvalidPenaltyRate
		}
		if in.VotingThreshold <= 0 || in.VotingThreshold > 100 {
			return ErrInvalidVotingThreshold
		}
		if in.Location == "" || len(in.Location) > 100 {
			return ErrInvalidLocation
		}
		if !instanceCurrencies[in.Currency] {
			return ErrInvalidCurrency
		}

		ch.Goal = in.Goal
		ch.Duration = in.Duration
		ch.MinContribution = in.MinContribution
		ch.MaxParticipants = in.MaxParticipants
		ch.ChallengeType = in.ChallengeType
		ch.PenaltyRate = in.PenaltyRate
		ch.VotingThreshold = in.VotingThreshold
		ch.Location = in.Location
		ch.Currency = in.Currency
		ch.StartHeight = height
		ch.EndHeight = height + in.Duration
		ch.Initialized = true
		ch.IsActive = true
		ch.Status = true
		return tx.Save(ch).Error
	})
}

// Join stakes a contribution and adds the caller to the roster. The deposit
// intent and the participant row commit together.
func (s *ChallengeService) Join(challengeID, caller string, height, contribution int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if !ch.IsActive {
			return ErrChallengeNotActive
		}
		if height >= ch.EndHeight {
			return ErrChallengeEnded
		}
		var existing models.Participant
		err = tx.Where("challenge_id = ? AND user_id = ?", challengeID, caller).First(&existing).Error
		if err == nil {
			return ErrAlreadyJoined
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if contribution < ch.MinContribution {
			return ErrInsufficientContribution
		}
		// guarded counter bump; a concurrent join past the cap loses here
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND participant_count < max_participants", challengeID).
			Update("participant_count", gorm.Expr("participant_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMaxParticipantsExceeded
		}
		if err := recordIntent(tx, models.IntentDeposit, contribution, caller, challengeID); err != nil {
			return err
		}
		if err := tx.Create(&models.Participant{
			ID:           uuid.NewString(),
			ChallengeID:  challengeID,
			UserID:       caller,
			Contribution: contribution,
			Progress:     0,
		}).Error; err != nil {
			// a concurrent join by the same user loses on the unique index
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyJoined
			}
			return err
		}
		return nil
	})
}

// SubmitProgress records progress for a participant. When the caller is the
// challenge's oracle it may report on behalf of a participant; otherwise the
// caller reports for itself. Progress never regresses, and completion latches
// once the goal is reached.
func (s *ChallengeService) SubmitProgress(challengeID, caller, participantID string, height, value int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if participantID != caller && caller != ch.Oracle {
			return ErrNotAuthorized
		}
		var p models.Participant
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, participantID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotJoined
			}
			return err
		}
		if !ch.IsActive {
			return ErrChallengeNotActive
		}
		if height >= ch.EndHeight {
			return ErrChallengeEnded
		}
		if value < p.Progress {
			return ErrInvalidProgress
		}
		updates := map[string]interface{}{"progress": value}
		if value >= ch.Goal {
			updates["completed"] = true
		}
		// the progress guard re-runs in the update, so a racing higher
		// submission cannot be overwritten by this one
		res := tx.Model(&models.Participant{}).
			Where("id = ? AND progress <= ?", p.ID, value).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidProgress
		}
		return nil
	})
}

// SetOracle delegates progress submission to an oracle identity. Creator only.
// The oracle is trusted by identity match alone.
func (s *ChallengeService) SetOracle(challengeID, caller, oracle string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if caller != ch.Creator {
			return ErrNotAuthorized
		}
		ch.Oracle = oracle
		return tx.Save(ch).Error
	})
}

// VoteOnExtension records or overwrites the caller's vote. No tallying
// happens here; the voting threshold is consumed by external governance.
func (s *ChallengeService) VoteOnExtension(challengeID, caller string, approve bool) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		var p models.Participant
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, caller).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotJoined
			}
			return err
		}
		if !ch.IsActive {
			return ErrChallengeNotActive
		}
		var vote models.ExtensionVote
		err = tx.Where("challenge_id = ? AND user_id = ?", challengeID, caller).First(&vote).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.ExtensionVote{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				UserID:      caller,
				Approve:     approve,
			}).Error
		}
		if err != nil {
			return err
		}
		vote.Approve = approve
		return tx.Save(&vote).Error
	})
}

// End closes the challenge once its end height has passed. Creator only.
// The close is terminal: a second call is rejected and changes nothing.
func (s *ChallengeService) End(challengeID, caller string, height int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if caller != ch.Creator {
			return ErrNotAuthorized
		}
		if !ch.IsActive {
			return ErrChallengeNotActive
		}
		if height < ch.EndHeight {
			return ErrInvalidEndTime
		}
		ch.IsActive = false
		ch.Status = false
		return tx.Save(ch).Error
	})
}

// ApplyPenalty computes the penalty for a non-completing participant and
// records the intent. The participant row itself is left untouched; the
// penalty is ledger-only. Creator only; completers are never penalized.
func (s *ChallengeService) ApplyPenalty(challengeID, caller, target string) (int64, error) {
	var penalty int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if caller != ch.Creator {
			return ErrNotAuthorized
		}
		var p models.Participant
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, target).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotJoined
			}
			return err
		}
		if p.Completed {
			return ErrInvalidStatus
		}
		penalty = p.Contribution * ch.PenaltyRate / 100
		return recordIntent(tx, models.IntentPenalty, penalty, target, challengeID)
	})
	if err != nil {
		return 0, err
	}
	return penalty, nil
}

// Claim pays the flat completion reward once the challenge is closed. The
// claimed flag and the withdraw intent commit atomically, so a repeat claim
// deterministically fails.
func (s *ChallengeService) Claim(challengeID, caller string) (int64, error) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ch, err := loadChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		var p models.Participant
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, caller).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotJoined
			}
			return err
		}
		if ch.IsActive {
			return ErrChallengeNotActive
		}
		if !p.Completed {
			return ErrInvalidStatus
		}
		if p.Claimed {
			return ErrRewardAlreadyClaimed
		}
		// flip the flag first; whichever racing claim loses the conditional
		// update rolls back without writing an intent
		res := tx.Model(&models.Participant{}).
			Where("id = ? AND claimed = ?", p.ID, false).
			Update("claimed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRewardAlreadyClaimed
		}
		return recordIntent(tx, models.IntentWithdraw, completionReward, caller, challengeID)
	})
	if err != nil {
		return 0, err
	}
	return completionReward, nil
}

func loadChallenge(tx *gorm.DB, id string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := tx.First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// requestHeight returns the logical block height for this request: the
// gateway-supplied header when present, else the cached chain state. Never a
// wall clock.
func (s *ChallengeService) requestHeight(c *fiber.Ctx) int64 {
	if h, ok := c.Locals("block_height").(int64); ok && h > 0 {
		return h
	}
	var st models.ChainState
	if err := s.DB.First(&st, "id = ?", 1).Error; err != nil {
		return 0
	}
	return st.Height
}

// --- Fiber handlers ---

func (s *ChallengeService) InitializeEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Goal            int64                `json:"goal"`
		Duration        int64                `json:"duration"`
		MinContribution int64                `json:"min_contribution"`
		MaxParticipants int                  `json:"max_participants"`
		ChallengeType   models.ChallengeType `json:"challenge_type"`
		PenaltyRate     int64                `json:"penalty_rate"`
		VotingThreshold int64                `json:"voting_threshold"`
		Location        string               `json:"location"`
		Currency        models.Currency      `json:"currency"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	err := s.Initialize(c.Params("id"), caller, s.requestHeight(c), InitializeInput{
		Goal:            req.Goal,
		Duration:        req.Duration,
		MinContribution: req.MinContribution,
		MaxParticipants: req.MaxParticipants,
		ChallengeType:   req.ChallengeType,
		PenaltyRate:     req.PenaltyRate,
		VotingThreshold: req.VotingThreshold,
		Location:        req.Location,
		Currency:        req.Currency,
	})
	if err != nil {
		return respondErr(c, err)
	}
	log.Printf("🏁 Challenge %s initialized by %s", c.Params("id"), caller)
	return c.JSON(fiber.Map{"message": "challenge initialized"})
}

func (s *ChallengeService) JoinEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Contribution int64 `json:"contribution"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.Join(c.Params("id"), caller, s.requestHeight(c), req.Contribution); err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "joined challenge"})
}

func (s *ChallengeService) SubmitProgressEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Value       int64  `json:"value"`
		Participant string `json:"participant,omitempty"` // oracle-only delegation
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	target := req.Participant
	if target == "" {
		target = caller
	}
	if err := s.SubmitProgress(c.Params("id"), caller, target, s.requestHeight(c), req.Value); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "progress recorded"})
}

func (s *ChallengeService) SetOracleEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Oracle string `json:"oracle"`
	}
	if err := c.BodyParser(&req); err != nil || req.Oracle == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "oracle is required"})
	}
	if err := s.SetOracle(c.Params("id"), caller, req.Oracle); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "oracle set", "oracle": req.Oracle})
}

func (s *ChallengeService) VoteEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Approve bool `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.VoteOnExtension(c.Params("id"), caller, req.Approve); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "vote recorded"})
}

func (s *ChallengeService) EndEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	if err := s.End(c.Params("id"), caller, s.requestHeight(c)); err != nil {
		return respondErr(c, err)
	}
	log.Printf("🏁 Challenge %s ended by %s", c.Params("id"), caller)
	return c.JSON(fiber.Map{"message": "challenge ended"})
}

func (s *ChallengeService) ApplyPenaltyEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Participant string `json:"participant"`
	}
	if err := c.BodyParser(&req); err != nil || req.Participant == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "participant is required"})
	}
	penalty, err := s.ApplyPenalty(c.Params("id"), caller, req.Participant)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "penalty recorded", "penalty": penalty})
}

func (s *ChallengeService) ClaimEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	reward, err := s.Claim(c.Params("id"), caller)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "reward claimed", "reward": reward})
}

// GetChallenge returns the full challenge record plus a display label for
// the type and the current roster size.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	var ch models.Challenge
	if err := s.DB.First(&ch, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrChallengeNotFound)
		}
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"challenge":    ch,
		"type_label":   typeCaser.String(string(ch.ChallengeType)),
		"participants": ch.ParticipantCount,
	})
}

// GetVotes lists the recorded extension votes with a running tally. The
// tally is informational; nothing in the lifecycle consumes it.
func (s *ChallengeService) GetVotes(c *fiber.Ctx) error {
	if _, err := loadChallenge(s.DB, c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	var votes []models.ExtensionVote
	if err := s.DB.Where("challenge_id = ?", c.Params("id")).Order("created_at ASC").Find(&votes).Error; err != nil {
		return respondErr(c, err)
	}
	approvals := 0
	for _, v := range votes {
		if v.Approve {
			approvals++
		}
	}
	return c.JSON(fiber.Map{
		"votes":     votes,
		"approvals": approvals,
		"total":     len(votes),
	})
}

func (s *ChallengeService) GetParticipant(c *fiber.Ctx) error {
	var p models.Participant
	err := s.DB.Where("challenge_id = ? AND user_id = ?", c.Params("id"), c.Params("user_id")).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrNotJoined)
		}
		return respondErr(c, err)
	}
	return c.JSON(p)
}
