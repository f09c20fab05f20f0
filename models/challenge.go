package models

import (
	"time"

	"gorm.io/gorm"
)

// ChallengeType categorizes what a challenge tracks
type ChallengeType string

const (
	ChallengeTypeFitness    ChallengeType = "fitness"
	ChallengeTypeMeditation ChallengeType = "meditation"
	ChallengeTypeReading    ChallengeType = "reading"
	ChallengeTypeSleep      ChallengeType = "sleep"
)

// Currency is the settlement token for a challenge's stakes
type Currency string

const (
	CurrencyUSDC Currency = "USDC"
	CurrencyBTC  Currency = "BTC"
	CurrencyWBTC Currency = "WBTC"
)

// Challenge represents a time-boxed staking challenge.
// The row is minted by the factory in an uninitialized state; the creator
// activates it via initialize, which fixes the start/end heights.
type Challenge struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	Name             string        `json:"name" gorm:"uniqueIndex;not null"`
	Slug             string        `json:"slug" gorm:"index"`
	Creator          string        `json:"creator" gorm:"index;not null"` // external user ID from gateway
	Oracle           string        `json:"oracle,omitempty"`              // optional delegated progress submitter
	Goal             int64         `json:"goal"`
	Duration         int64         `json:"duration"` // in blocks
	MinContribution  int64         `json:"min_contribution"`
	MaxParticipants  int           `json:"max_participants"`
	ParticipantCount int           `json:"participant_count" gorm:"default:0"` // roster size; only bumped under the join guard
	ChallengeType    ChallengeType `json:"challenge_type"`
	PenaltyRate      int64         `json:"penalty_rate"`     // percent, 0-100
	VotingThreshold  int64         `json:"voting_threshold"` // percent, advisory only
	Location         string        `json:"location" gorm:"size:100"`
	Currency         Currency      `json:"currency" gorm:"size:16"`
	StartHeight      int64         `json:"start_height"`
	EndHeight        int64         `json:"end_height"` // start + duration, never recomputed
	Initialized      bool          `json:"initialized" gorm:"default:false"`
	IsActive         bool          `json:"is_active" gorm:"default:false;index"` // one-way: never flips back to true
	Status           bool          `json:"status" gorm:"default:false"`          // mirrors IsActive at close
	CoverPhotoURL    string        `json:"cover_photo_url,omitempty"`

	Timestamps
}

// ExtensionVote records a participant's vote on extending a challenge.
// Votes are advisory; tallying against the voting threshold happens in an
// external governance process.
type ExtensionVote struct {
	ID          string `json:"id" gorm:"primaryKey"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_vote_challenge_user"`
	UserID      string `json:"user_id" gorm:"not null;uniqueIndex:idx_vote_challenge_user"`
	Approve     bool   `json:"approve"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
