package models

import "time"

// ChallengePool holds the reward-side accounting for one challenge,
// tracked independently of individual participant contributions.
type ChallengePool struct {
	ChallengeID      string `json:"challenge_id" gorm:"primaryKey"`
	PoolBalance      int64  `json:"pool_balance"`
	TotalContributed int64  `json:"total_contributed"` // high-water accumulator, never decremented
	WinnersCount     int    `json:"winners_count"`
	IsActive         bool   `json:"is_active" gorm:"default:true"`      // open for registration; one-way false
	IsDistributed    bool   `json:"is_distributed" gorm:"default:false"` // terminal latch

	Timestamps

	Tiers []RewardTier `json:"tiers,omitempty" gorm:"foreignKey:ChallengeID;references:ChallengeID"`
}

// RewardTier allocates a percentage of the pool to a contiguous rank range.
// Ranges are caller-defined and may overlap or leave gaps.
type RewardTier struct {
	ID          string `json:"id" gorm:"primaryKey"`
	ChallengeID string `json:"challenge_id" gorm:"not null;index"`
	Position    int    `json:"position"` // supplied order; distribution walks tiers in this order
	Percentage  int64  `json:"percentage"`
	MinRank     int    `json:"min_rank"`
	MaxRank     int    `json:"max_rank"`
}

// PoolWinner is one entry of the trusted, rank-ordered winner roster.
type PoolWinner struct {
	ID          string `json:"id" gorm:"primaryKey"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_winner_challenge_rank"`
	Rank        int    `json:"rank" gorm:"uniqueIndex:idx_winner_challenge_rank"` // 1-based list position
	UserID      string `json:"user_id" gorm:"index;not null"`
}

// DistributionLog is the append-only audit trail of individual payouts.
// Seq is the monotonically increasing distribution sequence.
type DistributionLog struct {
	Seq         uint64    `json:"seq" gorm:"primaryKey;autoIncrement"`
	ChallengeID string    `json:"challenge_id" gorm:"index"`
	Height      int64     `json:"height"`
	Distributor string    `json:"distributor"`
	UserID      string    `json:"user_id" gorm:"index"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
