package services

import (
	"wellness-challenge-platform/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// recordIntent appends a value-movement instruction for the custodian inside
// the caller's transaction, so the intent and the state change it settles
// commit as one atomic step.
func recordIntent(tx *gorm.DB, kind models.IntentKind, amount int64, userID, challengeID string) error {
	intent := &models.LedgerIntent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Amount:      amount,
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      models.IntentStatusPending,
	}
	return tx.Create(intent).Error
}
