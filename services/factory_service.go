package services

import (
	"errors"
	"log"
	"path/filepath"
	"strconv"

	"wellness-challenge-platform/models"
	"wellness-challenge-platform/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// factory-side allowed sets (the lifecycle controller re-validates with its
// own, slightly narrower sets)
var (
	factoryChallengeTypes = map[models.ChallengeType]bool{
		models.ChallengeTypeFitness:    true,
		models.ChallengeTypeMeditation: true,
		models.ChallengeTypeReading:    true,
		models.ChallengeTypeSleep:      true,
	}
	factoryCurrencies = map[models.Currency]bool{
		models.CurrencyUSDC: true,
		models.CurrencyWBTC: true,
	}
)

type FactoryService struct {
	DB *gorm.DB
}

func NewFactoryService(db *gorm.DB) *FactoryService {
	return &FactoryService{DB: db}
}

// EnsureState creates the singleton factory authority row if missing.
// Admin and cap come from deployment config; defaults only apply on first boot.
func (s *FactoryService) EnsureState(admin string, maxChallenges int64) error {
	var st models.FactoryState
	err := s.DB.First(&st, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = models.FactoryState{
			ID:            1,
			Admin:         admin,
			ChallengeSeq:  0,
			MaxChallenges: maxChallenges,
			IsActive:      true,
		}
		return s.DB.Create(&st).Error
	}
	return err
}

// CreateChallengeInput carries the pre-validated config for a new challenge.
type CreateChallengeInput struct {
	Name            string
	Goal            int64
	Duration        int64
	MinContribution int64
	MaxParticipants int
	ChallengeType   models.ChallengeType
	PenaltyRate     int64
	VotingThreshold int64
	Location        string
	Currency        models.Currency
	CoverPhotoURL   string
}

// CreateChallenge mints a new uninitialized challenge owned by the caller.
// Checks run in declared order; the first failure is returned and nothing is
// written.
func (s *FactoryService) CreateChallenge(caller string, in CreateChallengeInput) (*models.Challenge, error) {
	var created *models.Challenge
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.FactoryState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if !st.IsActive {
			return ErrFactoryLocked
		}
		if st.ChallengeSeq >= st.MaxChallenges {
			return ErrMaxChallengesExceeded
		}
		if in.Name == "" || len(in.Name) > 100 {
			return ErrInvalidName
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
		if !factoryChallengeTypes[in.ChallengeType] {
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
		if !factoryCurrencies[in.Currency] {
			return ErrInvalidCurrency
		}
		var count int64
		if err := tx.Model(&models.Challenge{}).Where("name = ?", in.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrNameTaken
		}

		ch := &models.Challenge{
			ID:              uuid.NewString(),
			Name:            in.Name,
			Slug:            slug.Make(in.Name),
			Creator:         caller,
			Goal:            in.Goal,
			Duration:        in.Duration,
			MinContribution: in.MinContribution,
			MaxParticipants: in.MaxParticipants,
			ChallengeType:   in.ChallengeType,
			PenaltyRate:     in.PenaltyRate,
			VotingThreshold: in.VotingThreshold,
			Location:        in.Location,
			Currency:        in.Currency,
			CoverPhotoURL:   in.CoverPhotoURL,
			Initialized:     false,
			IsActive:        false,
			Status:          false,
		}
		if err := tx.Create(ch).Error; err != nil {
			return err
		}
		st.ChallengeSeq++
		if err := tx.Save(&st).Error; err != nil {
			return err
		}
		created = ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Challenge minted: %s (%s) by %s", created.Name, created.ID, caller)
	return created, nil
}

// Pause stops all further challenge creation. Admin only.
func (s *FactoryService) Pause(caller string) error {
	return s.setActive(caller, false)
}

// Resume re-enables challenge creation. Admin only.
func (s *FactoryService) Resume(caller string) error {
	return s.setActive(caller, true)
}

func (s *FactoryService) setActive(caller string, active bool) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.FactoryState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if caller != st.Admin {
			return ErrNotAuthorized
		}
		st.IsActive = active
		return tx.Save(&st).Error
	})
}

// TransferAdmin hands the factory authority to a new identity. Admin only.
func (s *FactoryService) TransferAdmin(caller, newAdmin string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.FactoryState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if caller != st.Admin {
			return ErrNotAuthorized
		}
		st.Admin = newAdmin
		return tx.Save(&st).Error
	})
}

// SetMaxChallenges raises (or lowers) the global cap. The new cap must leave
// room above what has already been minted.
func (s *FactoryService) SetMaxChallenges(caller string, newMax int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.FactoryState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if caller != st.Admin {
			return ErrNotAuthorized
		}
		if newMax <= st.ChallengeSeq {
			return ErrInvalidUpdateParam
		}
		st.MaxChallenges = newMax
		return tx.Save(&st).Error
	})
}

// --- Fiber handlers ---

// CreateChallengeEndpoint accepts a multipart form so an optional cover photo
// can ride along with the config.
func (s *FactoryService) CreateChallengeEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)

	in := CreateChallengeInput{
		Name:          c.FormValue("name"),
		ChallengeType: models.ChallengeType(c.FormValue("challenge_type")),
		Location:      c.FormValue("location"),
		Currency:      models.Currency(c.FormValue("currency")),
	}

	var parseErr error
	in.Goal, parseErr = parseFormInt(c, "goal", parseErr)
	in.Duration, parseErr = parseFormInt(c, "duration", parseErr)
	in.MinContribution, parseErr = parseFormInt(c, "min_contribution", parseErr)
	in.PenaltyRate, parseErr = parseFormInt(c, "penalty_rate", parseErr)
	in.VotingThreshold, parseErr = parseFormInt(c, "voting_threshold", parseErr)
	maxParts, parseErr := parseFormInt(c, "max_participants", parseErr)
	if parseErr != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": parseErr.Error()})
	}
	in.MaxParticipants = int(maxParts)

	// optional cover photo → R2
	if photo, err := c.FormFile("cover_photo"); err == nil && photo.Size > 0 {
		ext := filepath.Ext(photo.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "challenges/covers/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(photo, key)
		if err != nil {
			log.Printf("❌ Cover photo upload failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload cover photo"})
		}
		in.CoverPhotoURL = url
	}

	ch, err := s.CreateChallenge(caller, in)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

func parseFormInt(c *fiber.Ctx, field string, prev error) (int64, error) {
	if prev != nil {
		return 0, prev
	}
	raw := c.FormValue(field)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(field + " must be an integer")
	}
	return n, nil
}

func (s *FactoryService) PauseEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	if err := s.Pause(caller); err != nil {
		return respondErr(c, err)
	}
	log.Printf("⏸️  Factory paused by %s", caller)
	return c.JSON(fiber.Map{"message": "factory paused"})
}

func (s *FactoryService) ResumeEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	if err := s.Resume(caller); err != nil {
		return respondErr(c, err)
	}
	log.Printf("▶️  Factory resumed by %s", caller)
	return c.JSON(fiber.Map{"message": "factory resumed"})
}

func (s *FactoryService) TransferAdminEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		NewAdmin string `json:"new_admin"`
	}
	if err := c.BodyParser(&req); err != nil || req.NewAdmin == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "new_admin is required"})
	}
	if err := s.TransferAdmin(caller, req.NewAdmin); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "admin transferred", "admin": req.NewAdmin})
}

func (s *FactoryService) SetMaxChallengesEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		MaxChallenges int64 `json:"max_challenges"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.SetMaxChallenges(caller, req.MaxChallenges); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "max challenges updated", "max_challenges": req.MaxChallenges})
}

// GetChallengeByName resolves a challenge ID from its unique name.
func (s *FactoryService) GetChallengeByName(c *fiber.Ctx) error {
	name := c.Params("name")
	var ch models.Challenge
	if err := s.DB.Where("name = ?", name).Or("slug = ?", name).First(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrChallengeNotFound)
		}
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": ch.ID, "name": ch.Name, "slug": ch.Slug})
}
