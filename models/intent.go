package models

import "time"

// IntentKind is the type of value movement requested from the custodian.
type IntentKind string

const (
	IntentDeposit  IntentKind = "deposit"
	IntentWithdraw IntentKind = "withdraw"
	IntentPenalty  IntentKind = "penalty"
)

// IntentStatus tracks dispatch to the custodian service.
type IntentStatus string

const (
	IntentStatusPending    IntentStatus = "pending"
	IntentStatusDispatched IntentStatus = "dispatched"
)

// LedgerIntent instructs the external custodian to move value. It is written
// in the same transaction as the state change it settles; actual transfer,
// failure and retry handling live entirely in the custodian.
type LedgerIntent struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	Kind         IntentKind   `json:"kind" gorm:"size:16;not null"`
	Amount       int64        `json:"amount"`
	UserID       string       `json:"user_id" gorm:"index;not null"`
	ChallengeID  string       `json:"challenge_id" gorm:"index"`
	Status       IntentStatus `json:"status" gorm:"size:16;default:'pending';index"`
	DispatchedAt *time.Time   `json:"dispatched_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
}
