package services

import (
	"testing"

	"wellness-challenge-platform/models"

	"github.com/stretchr/testify/require"
)

func singleTier() []TierInput {
	return []TierInput{{Percentage: 100, MinRank: 1, MaxRank: 3}}
}

func TestInitializePool(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	require.ErrorIs(t, svc.InitializePool("user-stranger", "ch-1", 1000, singleTier()), ErrNotAuthorized)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))
	require.ErrorIs(t, svc.InitializePool(testDistributor, "ch-1", 500, singleTier()), ErrPoolExists)

	var pool models.ChallengePool
	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.Equal(t, int64(1000), pool.PoolBalance)
	require.True(t, pool.IsActive)
	require.False(t, pool.IsDistributed)

	var tiers []models.RewardTier
	require.NoError(t, db.Where("challenge_id = ?", "ch-1").Find(&tiers).Error)
	require.Len(t, tiers, 1)
}

func TestInitializePoolTierValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	cases := []struct {
		name  string
		tiers []TierInput
		want  error
	}{
		{"no tiers", nil, ErrEmptyRewardTiers},
		{"sum over 100", []TierInput{{60, 1, 2}, {60, 3, 4}}, ErrPercentSumExceeds100},
		{"negative percentage", []TierInput{{-10, 1, 2}, {50, 3, 4}}, ErrInvalidPercentage},
		{"zero min rank", []TierInput{{50, 0, 2}}, ErrInvalidTierRange},
		{"inverted range", []TierInput{{50, 3, 2}}, ErrInvalidTierRange},
		{"degenerate range", []TierInput{{50, 2, 2}}, ErrInvalidTierRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, svc.InitializePool(testDistributor, "ch-"+tc.name, 1000, tc.tiers), tc.want)
		})
	}

	// the sum check fires before per-tier bounds
	err := svc.InitializePool(testDistributor, "ch-order", 1000, []TierInput{{150, 0, 0}})
	require.ErrorIs(t, err, ErrPercentSumExceeds100)

	// sums below 100 are accepted; the residue just stays in the pool
	require.NoError(t, svc.InitializePool(testDistributor, "ch-partial", 1000, []TierInput{{40, 1, 2}}))
}

func TestRegisterWinners(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))

	require.ErrorIs(t, svc.RegisterWinners(testDistributor, "ch-missing", []string{"user-a"}), ErrPoolNotFound)
	require.ErrorIs(t, svc.RegisterWinners("user-stranger", "ch-1", []string{"user-a"}), ErrNotAuthorized)

	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c"}))

	var pool models.ChallengePool
	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.Equal(t, 3, pool.WinnersCount)
	require.False(t, pool.IsActive)

	var winners []models.PoolWinner
	require.NoError(t, db.Where("challenge_id = ?", "ch-1").Order("rank ASC").Find(&winners).Error)
	require.Len(t, winners, 3)
	require.Equal(t, "user-a", winners[0].UserID)
	require.Equal(t, 1, winners[0].Rank)
	require.Equal(t, 3, winners[2].Rank)

	// registration closes the pool; a second roster is rejected
	require.ErrorIs(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-d"}), ErrPoolClosed)
}

func TestDistributeEvenSplit(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c"}))

	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	// 1000 over 3 winners floors to 333 each; the extra unit stays in the pool
	for _, u := range []string{"user-a", "user-b", "user-c"} {
		var reward models.UserReward
		require.NoError(t, db.First(&reward, "user_id = ?", u).Error)
		require.Equal(t, int64(333), reward.Balance)
	}

	var pool models.ChallengePool
	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.True(t, pool.IsDistributed)

	var logs []models.DistributionLog
	require.NoError(t, db.Where("challenge_id = ?", "ch-1").Order("seq ASC").Find(&logs).Error)
	require.Len(t, logs, 3)
	require.Equal(t, int64(500), logs[0].Height)
	require.Equal(t, testDistributor, logs[0].Distributor)
}

func TestDistributeGuards(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))

	// no registration yet, so the pool is still open
	require.ErrorIs(t, svc.Distribute(testDistributor, "ch-1", 500), ErrPoolActive)

	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a"}))
	require.ErrorIs(t, svc.Distribute("user-stranger", "ch-1", 500), ErrNotAuthorized)

	// a drained pool cannot pay
	require.NoError(t, svc.InitializePool(testDistributor, "ch-empty", 0, singleTier()))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-empty", []string{"user-a"}))
	require.ErrorIs(t, svc.Distribute(testDistributor, "ch-empty", 500), ErrInsufficientPool)
}

func TestDistributeExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c"}))
	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	require.ErrorIs(t, svc.Distribute(testDistributor, "ch-1", 501), ErrRewardAlreadyDistributed)

	// the retry credited nothing
	var reward models.UserReward
	require.NoError(t, db.First(&reward, "user_id = ?", "user-a").Error)
	require.Equal(t, int64(333), reward.Balance)
	var logs []models.DistributionLog
	require.NoError(t, db.Where("challenge_id = ?", "ch-1").Find(&logs).Error)
	require.Len(t, logs, 3)
}

func TestDistributeTieredSplit(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	tiers := []TierInput{
		{Percentage: 50, MinRank: 1, MaxRank: 2},
		{Percentage: 30, MinRank: 3, MaxRank: 5},
	}
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, tiers))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c", "user-d"}))
	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	// tier 1: 500 over ranks 1-2 → 250 each
	// tier 2: 300 over ranks 3-4 (rank 5 unfilled) → 150 each
	expect := map[string]int64{"user-a": 250, "user-b": 250, "user-c": 150, "user-d": 150}
	for u, want := range expect {
		var reward models.UserReward
		require.NoError(t, db.First(&reward, "user_id = ?", u).Error)
		require.Equal(t, want, reward.Balance, u)
	}
}

// An empty roster still distributes: nobody gets paid, the latch sticks, and
// the pool is not left stranded closed-but-undistributed.
func TestDistributeEmptyRoster(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{}))

	var pool models.ChallengePool
	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.Equal(t, 0, pool.WinnersCount)
	require.False(t, pool.IsActive)

	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.True(t, pool.IsDistributed)
	require.Equal(t, int64(1000), pool.PoolBalance)

	var logs []models.DistributionLog
	require.NoError(t, db.Where("challenge_id = ?", "ch-1").Find(&logs).Error)
	require.Empty(t, logs)

	require.ErrorIs(t, svc.Distribute(testDistributor, "ch-1", 501), ErrRewardAlreadyDistributed)
}

// A rank matched by more than one tier is credited by each tier independently.
func TestDistributeOverlappingTiers(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	tiers := []TierInput{
		{Percentage: 50, MinRank: 1, MaxRank: 2},
		{Percentage: 50, MinRank: 1, MaxRank: 3},
	}
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, tiers))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c"}))
	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	// tier 1: 500 over ranks 1-2 → 250 each
	// tier 2: 500 over ranks 1-3 → 166 each
	expect := map[string]int64{"user-a": 416, "user-b": 416, "user-c": 166}
	for u, want := range expect {
		var reward models.UserReward
		require.NoError(t, db.First(&reward, "user_id = ?", u).Error)
		require.Equal(t, want, reward.Balance, u)
	}
}

func TestDistributeRequiresClosedPool(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))

	// plant a winner row without going through registration; the pool is
	// still open, so distribution must refuse
	require.NoError(t, db.Create(&models.PoolWinner{ID: "w-1", ChallengeID: "ch-1", Rank: 1, UserID: "user-a"}).Error)
	require.ErrorIs(t, svc.Distribute(testDistributor, "ch-1", 500), ErrPoolActive)
}

func TestUpdatePoolBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))

	require.ErrorIs(t, svc.UpdatePoolBalance("user-stranger", "ch-1", 500, true), ErrNotAuthorized)
	require.NoError(t, svc.UpdatePoolBalance(testDistributor, "ch-1", 500, true))
	require.NoError(t, svc.UpdatePoolBalance(testDistributor, "ch-1", 200, false))

	var pool models.ChallengePool
	require.NoError(t, db.First(&pool, "challenge_id = ?", "ch-1").Error)
	require.Equal(t, int64(1300), pool.PoolBalance)
	// only additions count toward the contribution accumulator
	require.Equal(t, int64(500), pool.TotalContributed)

	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a"}))
	require.ErrorIs(t, svc.UpdatePoolBalance(testDistributor, "ch-1", 100, true), ErrPoolLocked)
}

func TestRewardClaim(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a", "user-b", "user-c"}))
	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	amount, err := svc.Claim("user-a")
	require.NoError(t, err)
	require.Equal(t, int64(333), amount)

	var reward models.UserReward
	require.NoError(t, db.First(&reward, "user_id = ?", "user-a").Error)
	require.Equal(t, int64(0), reward.Balance)

	withdrawals := intentsFor(t, db, "user-a", models.IntentWithdraw)
	require.Len(t, withdrawals, 1)
	require.Equal(t, int64(333), withdrawals[0].Amount)

	// drained and unknown balances claim identically
	_, err = svc.Claim("user-a")
	require.ErrorIs(t, err, ErrNoRewardsAvailable)
	_, err = svc.Claim("user-never-won")
	require.ErrorIs(t, err, ErrNoRewardsAvailable)
	require.Len(t, intentsFor(t, db, "user-a", models.IntentWithdraw), 1)
}

// Two claims racing for the same accrual settle exactly one withdraw intent.
func TestRewardClaimSettlesOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)
	require.NoError(t, svc.InitializePool(testDistributor, "ch-1", 1000, []TierInput{{100, 1, 2}}))
	require.NoError(t, svc.RegisterWinners(testDistributor, "ch-1", []string{"user-a"}))
	require.NoError(t, svc.Distribute(testDistributor, "ch-1", 500))

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Claim("user-a")
			results <- err
		}()
	}
	var succeeded, refused int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrNoRewardsAvailable)
			refused++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, refused)

	withdrawals := intentsFor(t, db, "user-a", models.IntentWithdraw)
	require.Len(t, withdrawals, 1)
	require.Equal(t, int64(1000), withdrawals[0].Amount)

	var reward models.UserReward
	require.NoError(t, db.First(&reward, "user_id = ?", "user-a").Error)
	require.Equal(t, int64(0), reward.Balance)
}

// Credits survive across challenges and pay out in one claim.
func TestRewardAccumulation(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	for _, ch := range []string{"ch-1", "ch-2"} {
		require.NoError(t, svc.InitializePool(testDistributor, ch, 300, []TierInput{{100, 1, 2}}))
		require.NoError(t, svc.RegisterWinners(testDistributor, ch, []string{"user-a"}))
		require.NoError(t, svc.Distribute(testDistributor, ch, 500))
	}

	amount, err := svc.Claim("user-a")
	require.NoError(t, err)
	require.Equal(t, int64(600), amount)
}

func TestSetDistributor(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributorService(db)

	require.ErrorIs(t, svc.SetDistributor("user-stranger", "user-new"), ErrNotAuthorized)
	require.NoError(t, svc.SetDistributor(testDistributor, "user-new"))

	// the old identity lost its authority with the handover
	require.ErrorIs(t, svc.InitializePool(testDistributor, "ch-1", 1000, singleTier()), ErrNotAuthorized)
	require.NoError(t, svc.InitializePool("user-new", "ch-1", 1000, singleTier()))
}
