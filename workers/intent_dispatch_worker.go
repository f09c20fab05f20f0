// workers/intent_dispatch_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"wellness-challenge-platform/models"

	"gorm.io/gorm"
)

// IntentDispatchWorker forwards pending ledger intents to the custodian
// service. Intents are fire-and-forget from the core's point of view: once
// dispatched, transfer failures and retries are the custodian's problem.
// A failed batch stays pending and is retried on the next tick.
type IntentDispatchWorker struct {
	DB         *gorm.DB
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	BatchSize  int
}

func NewIntentDispatchWorker(db *gorm.DB) *IntentDispatchWorker {
	baseURL := os.Getenv("CUSTODIAN_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("CUSTODIAN_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("CHALLENGE_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("CHALLENGE_SERVICE_TOKEN environment variable is required for intent dispatch")
	}

	return &IntentDispatchWorker{
		DB:      db,
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		BatchSize: 100,
	}
}

// Run polls for pending intents until the context is cancelled.
func (w *IntentDispatchWorker) Run(ctx context.Context, pollInterval time.Duration) {
	log.Println("Starting ledger intent dispatch worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Intent dispatch worker stopped.")
			return
		case <-ticker.C:
			if err := w.dispatchBatch(ctx); err != nil {
				log.Printf("❌ Intent dispatch failed: %v", err)
			}
		}
	}
}

func (w *IntentDispatchWorker) dispatchBatch(ctx context.Context) error {
	var intents []models.LedgerIntent
	err := w.DB.Where("status = ?", models.IntentStatusPending).
		Order("created_at ASC").
		Limit(w.BatchSize).
		Find(&intents).Error
	if err != nil {
		return fmt.Errorf("failed to load pending intents: %w", err)
	}
	if len(intents) == 0 {
		return nil
	}

	if err := w.postIntents(ctx, intents); err != nil {
		return err
	}

	// mark dispatched only after the custodian accepted the batch
	now := time.Now().UTC()
	ids := make([]string, len(intents))
	for i, in := range intents {
		ids[i] = in.ID
	}
	err = w.DB.Model(&models.LedgerIntent{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":        models.IntentStatusDispatched,
			"dispatched_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark intents dispatched: %w", err)
	}

	log.Printf("📤 Dispatched %d ledger intent(s) to custodian.", len(intents))
	return nil
}

func (w *IntentDispatchWorker) postIntents(ctx context.Context, intents []models.LedgerIntent) error {
	payload, err := json.Marshal(map[string]interface{}{"intents": intents})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.BaseURL+"/api/v1/intents", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", w.Token)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call custodian: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("custodian returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
