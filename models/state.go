package models

import "time"

// FactoryState is the single authority record for challenge creation.
// Exactly one row per deployment (ID = 1); mutated only through the
// dedicated pause/resume/transfer operations.
type FactoryState struct {
	ID            int    `json:"id" gorm:"primaryKey"`
	Admin         string `json:"admin" gorm:"not null"`
	ChallengeSeq  int64  `json:"challenge_seq"`  // count of challenges minted so far
	MaxChallenges int64  `json:"max_challenges"` // global cap
	IsActive      bool   `json:"is_active" gorm:"default:true"`

	Timestamps
}

// DistributorState holds the reward distributor authority. One row (ID = 1).
type DistributorState struct {
	ID          int    `json:"id" gorm:"primaryKey"`
	Distributor string `json:"distributor" gorm:"not null"`

	Timestamps
}

// ChainState caches the last block height observed from the custodian.
// Lifecycle decisions prefer the height the gateway sends per request; this
// row is the fallback when the header is absent.
type ChainState struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	Height    int64     `json:"height"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
