package services

import (
	"strings"
	"testing"

	"wellness-challenge-platform/models"

	"github.com/stretchr/testify/require"
)

func TestCreateChallenge(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	ch, err := svc.CreateChallenge(testCreator, validCreateInput("10K Steps March"))
	require.NoError(t, err)
	require.NotEmpty(t, ch.ID)
	require.Equal(t, "10k-steps-march", ch.Slug)
	require.Equal(t, testCreator, ch.Creator)
	require.False(t, ch.Initialized)
	require.False(t, ch.IsActive)

	var st models.FactoryState
	require.NoError(t, db.First(&st, "id = ?", 1).Error)
	require.Equal(t, int64(1), st.ChallengeSeq)
}

func TestCreateChallengeDuplicateName(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	_, err := svc.CreateChallenge(testCreator, validCreateInput("Marathon"))
	require.NoError(t, err)
	_, err = svc.CreateChallenge("user-other", validCreateInput("Marathon"))
	require.ErrorIs(t, err, ErrNameTaken)

	var st models.FactoryState
	require.NoError(t, db.First(&st, "id = ?", 1).Error)
	require.Equal(t, int64(1), st.ChallengeSeq)
}

func TestCreateChallengeValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	cases := []struct {
		name   string
		mutate func(*CreateChallengeInput)
		want   error
	}{
		{"empty name", func(in *CreateChallengeInput) { in.Name = "" }, ErrInvalidName},
		{"name too long", func(in *CreateChallengeInput) { in.Name = strings.Repeat("x", 101) }, ErrInvalidName},
		{"zero goal", func(in *CreateChallengeInput) { in.Goal = 0 }, ErrInvalidGoal},
		{"negative goal", func(in *CreateChallengeInput) { in.Goal = -5 }, ErrInvalidGoal},
		{"zero duration", func(in *CreateChallengeInput) { in.Duration = 0 }, ErrInvalidDuration},
		{"zero min contribution", func(in *CreateChallengeInput) { in.MinContribution = 0 }, ErrInvalidMinContribution},
		{"zero max participants", func(in *CreateChallengeInput) { in.MaxParticipants = 0 }, ErrInvalidMaxParticipants},
		{"too many participants", func(in *CreateChallengeInput) { in.MaxParticipants = 101 }, ErrInvalidMaxParticipants},
		{"unknown type", func(in *CreateChallengeInput) { in.ChallengeType = "yoga" }, ErrInvalidChallengeType},
		{"penalty over 100", func(in *CreateChallengeInput) { in.PenaltyRate = 101 }, ErrInvalidPenaltyRate},
		{"zero voting threshold", func(in *CreateChallengeInput) { in.VotingThreshold = 0 }, ErrInvalidVotingThreshold},
		{"empty location", func(in *CreateChallengeInput) { in.Location = "" }, ErrInvalidLocation},
		{"unknown currency", func(in *CreateChallengeInput) { in.Currency = "DOGE" }, ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreateInput("Validation " + tc.name)
			tc.mutate(&in)
			_, err := svc.CreateChallenge(testCreator, in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

// The earliest failing check wins when several fields are bad at once.
func TestCreateChallengeFirstErrorWins(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	in := validCreateInput("Broken Config")
	in.Goal = -1
	in.Duration = -1
	in.Currency = "DOGE"
	_, err := svc.CreateChallenge(testCreator, in)
	require.ErrorIs(t, err, ErrInvalidGoal)
}

func TestFactoryPauseResume(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	require.ErrorIs(t, svc.Pause("user-stranger"), ErrNotAuthorized)
	require.NoError(t, svc.Pause(testAdmin))

	_, err := svc.CreateChallenge(testCreator, validCreateInput("During Pause"))
	require.ErrorIs(t, err, ErrFactoryLocked)

	require.NoError(t, svc.Resume(testAdmin))
	_, err = svc.CreateChallenge(testCreator, validCreateInput("After Resume"))
	require.NoError(t, err)
}

func TestFactoryTransferAdmin(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	require.ErrorIs(t, svc.TransferAdmin("user-stranger", "user-new-admin"), ErrNotAuthorized)
	require.NoError(t, svc.TransferAdmin(testAdmin, "user-new-admin"))

	// old admin has no authority left
	require.ErrorIs(t, svc.Pause(testAdmin), ErrNotAuthorized)
	require.NoError(t, svc.Pause("user-new-admin"))
}

func TestSetMaxChallenges(t *testing.T) {
	db := newTestDB(t)
	svc := NewFactoryService(db)

	_, err := svc.CreateChallenge(testCreator, validCreateInput("One"))
	require.NoError(t, err)
	_, err = svc.CreateChallenge(testCreator, validCreateInput("Two"))
	require.NoError(t, err)

	// the cap must stay above what has already been minted
	require.ErrorIs(t, svc.SetMaxChallenges(testAdmin, 2), ErrInvalidUpdateParam)
	require.ErrorIs(t, svc.SetMaxChallenges(testAdmin, 0), ErrInvalidUpdateParam)
	require.ErrorIs(t, svc.SetMaxChallenges("user-stranger", 50), ErrNotAuthorized)
	require.NoError(t, svc.SetMaxChallenges(testAdmin, 3))

	_, err = svc.CreateChallenge(testCreator, validCreateInput("Three"))
	require.NoError(t, err)
	_, err = svc.CreateChallenge(testCreator, validCreateInput("Four"))
	require.ErrorIs(t, err, ErrMaxChallengesExceeded)
}
