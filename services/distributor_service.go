package services

import (
	"errors"
	"log"

	"wellness-challenge-platform/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DistributorService struct {
	DB *gorm.DB
}

func NewDistributorService(db *gorm.DB) *DistributorService {
	return &DistributorService{DB: db}
}

// EnsureState creates the singleton distributor authority row if missing.
func (s *DistributorService) EnsureState(distributor string) error {
	var st models.DistributorState
	err := s.DB.First(&st, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(&models.DistributorState{ID: 1, Distributor: distributor}).Error
	}
	return err
}

// TierInput is one percentage allocation over a rank range, in caller order.
type TierInput struct {
	Percentage int64 `json:"percentage"`
	MinRank    int   `json:"min_rank"`
	MaxRank    int   `json:"max_rank"`
}

// InitializePool creates the reward-side record for a challenge. Tier checks
// run list-empty first, then the percentage sum, then per-tier bounds.
// Sums below 100 are fine: the residue stays in the pool.
func (s *DistributorService) InitializePool(caller, challengeID string, initialBalance int64, tiers []TierInput) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.requireDistributor(tx, caller); err != nil {
			return err
		}
		var existing models.ChallengePool
		err := tx.First(&existing, "challenge_id = ?", challengeID).Error
		if err == nil {
			return ErrPoolExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if len(tiers) == 0 {
			return ErrEmptyRewardTiers
		}
		var sum int64
		for _, t := range tiers {
			sum += t.Percentage
		}
		if sum > 100 {
			return ErrPercentSumExceeds100
		}
		for _, t := range tiers {
			if t.Percentage < 0 || t.Percentage > 100 {
				return ErrInvalidPercentage
			}
			if t.MinRank < 1 || t.MaxRank <= t.MinRank {
				return ErrInvalidTierRange
			}
		}
		pool := &models.ChallengePool{
			ChallengeID:      challengeID,
			PoolBalance:      initialBalance,
			TotalContributed: 0,
			WinnersCount:     0,
			IsActive:         true,
			IsDistributed:    false,
		}
		if err := tx.Create(pool).Error; err != nil {
			return err
		}
		for i, t := range tiers {
			tier := &models.RewardTier{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				Position:    i,
				Percentage:  t.Percentage,
				MinRank:     t.MinRank,
				MaxRank:     t.MaxRank,
			}
			if err := tx.Create(tier).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RegisterWinners stores the trusted, rank-ordered roster and closes the pool
// for registration. List position (1-based) is the rank; no correctness
// checks are made on the ordering.
func (s *DistributorService) RegisterWinners(caller, challengeID string, winners []string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		pool, err := loadPool(tx, challengeID)
		if err != nil {
			return err
		}
		if err := s.requireDistributor(tx, caller); err != nil {
			return err
		}
		if !pool.IsActive {
			return ErrPoolClosed
		}
		if pool.IsDistributed {
			return ErrDistributionCompleted
		}
		for i, w := range winners {
			row := &models.PoolWinner{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				Rank:        i + 1,
				UserID:      w,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		// conditional close: a racing second registration loses here
		res := tx.Model(&models.ChallengePool{}).
			Where("challenge_id = ? AND is_active = ?", challengeID, true).
			Updates(map[string]interface{}{"is_active": false, "winners_count": len(winners)})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPoolClosed
		}
		return nil
	})
}

// Distribute splits the pool among registered winners, tier by tier in
// supplied order. All amounts are integer floor divisions; truncation
// residue stays in the pool untracked. A winner matched by more than one
// tier is credited by each. Exactly-once: the distributed latch and every
// credit commit in one transaction.
func (s *DistributorService) Distribute(caller, challengeID string, height int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		pool, err := loadPool(tx, challengeID)
		if err != nil {
			return err
		}
		if err := s.requireDistributor(tx, caller); err != nil {
			return err
		}
		if pool.IsActive {
			return ErrPoolActive
		}
		if pool.IsDistributed {
			return ErrRewardAlreadyDistributed
		}
		if pool.PoolBalance <= 0 {
			return ErrInsufficientPool
		}
		// latch first; whichever racing distribution loses the conditional
		// update rolls back without crediting anyone
		res := tx.Model(&models.ChallengePool{}).
			Where("challenge_id = ? AND is_distributed = ?", challengeID, false).
			Update("is_distributed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRewardAlreadyDistributed
		}

		// an empty roster distributes to nobody: every tier subset is empty
		// and the latch still sticks
		var winners []models.PoolWinner
		if err := tx.Where("challenge_id = ?", challengeID).Order("rank ASC").Find(&winners).Error; err != nil {
			return err
		}

		var tiers []models.RewardTier
		if err := tx.Where("challenge_id = ?", challengeID).Order("position ASC").Find(&tiers).Error; err != nil {
			return err
		}
		for _, tier := range tiers {
			var subset []models.PoolWinner
			for _, w := range winners {
				if w.Rank >= tier.MinRank && w.Rank <= tier.MaxRank {
					subset = append(subset, w)
				}
			}
			if len(subset) == 0 {
				continue // tiers with no matching rank pay nothing
			}
			tierAmount := pool.PoolBalance * tier.Percentage / 100
			perWinner := tierAmount / int64(len(subset))
			for _, w := range subset {
				if err := creditReward(tx, w.UserID, perWinner); err != nil {
					return err
				}
				entry := &models.DistributionLog{
					ChallengeID: challengeID,
					Height:      height,
					Distributor: caller,
					UserID:      w.UserID,
					Amount:      perWinner,
				}
				if err := tx.Create(entry).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// UpdatePoolBalance adjusts the pool while it still accepts entries. Adding
// also bumps the historical contribution accumulator.
func (s *DistributorService) UpdatePoolBalance(caller, challengeID string, amount int64, isAdd bool) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		pool, err := loadPool(tx, challengeID)
		if err != nil {
			return err
		}
		if err := s.requireDistributor(tx, caller); err != nil {
			return err
		}
		if !pool.IsActive {
			return ErrPoolLocked
		}
		updates := map[string]interface{}{"pool_balance": gorm.Expr("pool_balance - ?", amount)}
		if isAdd {
			updates["pool_balance"] = gorm.Expr("pool_balance + ?", amount)
			updates["total_contributed"] = gorm.Expr("total_contributed + ?", amount)
		}
		// the adjustment lands atomically and only while the pool is open
		res := tx.Model(&models.ChallengePool{}).
			Where("challenge_id = ? AND is_active = ?", challengeID, true).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPoolLocked
		}
		return nil
	})
}

// Claim withdraws the caller's full accumulated balance. Zeroing and the
// withdraw intent commit atomically, so no caller can ever be paid twice for
// the same accrual.
func (s *DistributorService) Claim(caller string) (int64, error) {
	var amount int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var reward models.UserReward
		if err := tx.First(&reward, "user_id = ?", caller).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoRewardsAvailable
			}
			return err
		}
		if reward.Balance <= 0 {
			return ErrNoRewardsAvailable
		}
		amount = reward.Balance
		// zero exactly the balance that was read; a racing claim or credit
		// changes it and this update then matches no row
		res := tx.Model(&models.UserReward{}).
			Where("user_id = ? AND balance = ?", caller, amount).
			Update("balance", 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoRewardsAvailable
		}
		return recordIntent(tx, models.IntentWithdraw, amount, caller, "")
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// SetDistributor transfers the distribution authority.
func (s *DistributorService) SetDistributor(caller, newDistributor string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.DistributorState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if caller != st.Distributor {
			return ErrNotAuthorized
		}
		st.Distributor = newDistributor
		return tx.Save(&st).Error
	})
}

func (s *DistributorService) requireDistributor(tx *gorm.DB, caller string) error {
	var st models.DistributorState
	if err := tx.First(&st, "id = ?", 1).Error; err != nil {
		return err
	}
	if caller != st.Distributor {
		return ErrNotAuthorized
	}
	return nil
}

func loadPool(tx *gorm.DB, challengeID string) (*models.ChallengePool, error) {
	var pool models.ChallengePool
	if err := tx.First(&pool, "challenge_id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func creditReward(tx *gorm.DB, userID string, amount int64) error {
	var reward models.UserReward
	err := tx.First(&reward, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.UserReward{UserID: userID, Balance: amount}).Error
	}
	if err != nil {
		return err
	}
	reward.Balance += amount
	return tx.Save(&reward).Error
}

// --- Fiber handlers ---

func (s *DistributorService) InitializePoolEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		ChallengeID    string      `json:"challenge_id"`
		InitialBalance int64       `json:"initial_balance"`
		Tiers          []TierInput `json:"tiers"`
	}
	if err := c.BodyParser(&req); err != nil || req.ChallengeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "challenge_id is required"})
	}
	if err := s.InitializePool(caller, req.ChallengeID, req.InitialBalance, req.Tiers); err != nil {
		return respondErr(c, err)
	}
	log.Printf("💰 Pool created for challenge %s (balance %d, %d tiers)", req.ChallengeID, req.InitialBalance, len(req.Tiers))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "pool initialized"})
}

func (s *DistributorService) RegisterWinnersEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Winners []string `json:"winners"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.RegisterWinners(caller, c.Params("challenge_id"), req.Winners); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "winners registered", "count": len(req.Winners)})
}

func (s *DistributorService) DistributeEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	height, _ := c.Locals("block_height").(int64)
	if err := s.Distribute(caller, c.Params("challenge_id"), height); err != nil {
		return respondErr(c, err)
	}
	log.Printf("💸 Rewards distributed for challenge %s", c.Params("challenge_id"))
	return c.JSON(fiber.Map{"message": "rewards distributed"})
}

func (s *DistributorService) UpdatePoolBalanceEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Amount int64 `json:"amount"`
		IsAdd  bool  `json:"is_add"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.UpdatePoolBalance(caller, c.Params("challenge_id"), req.Amount, req.IsAdd); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "pool balance updated"})
}

func (s *DistributorService) ClaimEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	amount, err := s.Claim(caller)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "reward claimed", "amount": amount})
}

func (s *DistributorService) SetDistributorEndpoint(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req struct {
		Distributor string `json:"distributor"`
	}
	if err := c.BodyParser(&req); err != nil || req.Distributor == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "distributor is required"})
	}
	if err := s.SetDistributor(caller, req.Distributor); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"message": "distributor updated", "distributor": req.Distributor})
}

// GetPool returns the pool snapshot with its tiers.
func (s *DistributorService) GetPool(c *fiber.Ctx) error {
	var pool models.ChallengePool
	err := s.DB.Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&pool, "challenge_id = ?", c.Params("challenge_id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrPoolNotFound)
		}
		return respondErr(c, err)
	}
	return c.JSON(pool)
}

// GetUserReward returns the caller's withdrawable balance (zero if absent).
func (s *DistributorService) GetUserReward(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var reward models.UserReward
	err := s.DB.First(&reward, "user_id = ?", caller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"user_id": caller, "balance": 0})
	}
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"user_id": reward.UserID, "balance": reward.Balance})
}
