package models

// UserReward is a user's withdrawable balance, accumulated across challenges.
// Only the distributor credits it; only a claim zeroes it. No partial
// withdrawals.
type UserReward struct {
	UserID  string `json:"user_id" gorm:"primaryKey"`
	Balance int64  `json:"balance"`

	Timestamps
}
