package models

// Participant tracks a single user's stake and progress inside a challenge.
// One row per (challenge, user); the contribution is fixed at join time and
// progress only ever moves forward.
type Participant struct {
	ID           string `json:"id" gorm:"primaryKey"`
	ChallengeID  string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_participant_challenge_user"`
	UserID       string `json:"user_id" gorm:"not null;uniqueIndex:idx_participant_challenge_user;index"`
	Contribution int64  `json:"contribution"`
	Progress     int64  `json:"progress" gorm:"default:0"`
	Completed    bool   `json:"completed" gorm:"default:false"` // latches true once progress reaches the goal
	Claimed      bool   `json:"claimed" gorm:"default:false"`   // latches true on first successful claim

	Timestamps
}
