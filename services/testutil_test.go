package services

import (
	"testing"

	"wellness-challenge-platform/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testAdmin       = "user-admin"
	testDistributor = "user-distributor"
	testCreator     = "user-creator"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// a fresh connection would see a fresh in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
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
	))

	require.NoError(t, NewFactoryService(db).EnsureState(testAdmin, 1000))
	require.NoError(t, NewDistributorService(db).EnsureState(testDistributor))

	return db
}

func validCreateInput(name string) CreateChallengeInput {
	return CreateChallengeInput{
		Name:            name,
		Goal:            10000,
		Duration:        30,
		MinContribution: 100,
		MaxParticipants: 50,
		ChallengeType:   models.ChallengeTypeFitness,
		PenaltyRate:     5,
		VotingThreshold: 50,
		Location:        "Global",
		Currency:        models.CurrencyUSDC,
	}
}

func validInitInput() InitializeInput {
	return InitializeInput{
		Goal:            10000,
		Duration:        30,
		MinContribution: 100,
		MaxParticipants: 50,
		ChallengeType:   models.ChallengeTypeFitness,
		PenaltyRate:     5,
		VotingThreshold: 50,
		Location:        "Global",
		Currency:        models.CurrencyUSDC,
	}
}

// mintChallenge creates and activates a challenge at height 0 and returns its ID.
func mintChallenge(t *testing.T, db *gorm.DB, name string) string {
	t.Helper()

	ch, err := NewFactoryService(db).CreateChallenge(testCreator, validCreateInput(name))
	require.NoError(t, err)
	require.NoError(t, NewChallengeService(db).Initialize(ch.ID, testCreator, 0, validInitInput()))
	return ch.ID
}

func intentsFor(t *testing.T, db *gorm.DB, userID string, kind models.IntentKind) []models.LedgerIntent {
	t.Helper()

	var intents []models.LedgerIntent
	require.NoError(t, db.Where("user_id = ? AND kind = ?", userID, kind).Find(&intents).Error)
	return intents
}
