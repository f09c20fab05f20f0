// services/scheduler.go
package services

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"wellness-challenge-platform/models"
	"wellness-challenge-platform/utils"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// ChainService keeps the cached block height fresh. The core never measures
// time itself; height comes from the gateway per request, with this cache as
// the fallback.
type ChainService struct {
	DB           *gorm.DB
	CustodianURL string
	Token        string
}

func NewChainService(db *gorm.DB) *ChainService {
	return &ChainService{
		DB:           db,
		CustodianURL: os.Getenv("CUSTODIAN_SERVICE_URL"),
		Token:        os.Getenv("CHALLENGE_SERVICE_TOKEN"),
	}
}

// EnsureState creates the singleton chain state row if missing.
func (s *ChainService) EnsureState() error {
	var st models.ChainState
	err := s.DB.First(&st, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(&models.ChainState{ID: 1, Height: 0}).Error
	}
	return err
}

// RefreshHeight pulls the current height from the custodian and stores it.
// Heights only ever move forward; a stale response is ignored.
func (s *ChainService) RefreshHeight() error {
	req, err := http.NewRequest("GET", s.CustodianURL+"/api/v1/chain/height", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Service-Token", s.Token)

	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("custodian returned status " + resp.Status)
	}

	var body struct {
		Height int64 `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var st models.ChainState
		if err := tx.First(&st, "id = ?", 1).Error; err != nil {
			return err
		}
		if body.Height <= st.Height {
			return nil
		}
		st.Height = body.Height
		return tx.Save(&st).Error
	})
}

// StartHeightScheduler refreshes the cached height every 30 seconds.
func (s *ChainService) StartHeightScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			if err := s.RefreshHeight(); err != nil {
				log.Printf("[Scheduler] Height refresh failed: %v", err)
			}
		}),
	)
}
