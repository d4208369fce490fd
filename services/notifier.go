package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"poker-league/logger"
	"poker-league/utils"
)

// BlindChange is sent to players when a game date's clock moves to a new level.
type BlindChange struct {
	GameDateID      string    `json:"game_date_id"`
	Level           int       `json:"level"`
	SmallBlind      int64     `json:"small_blind"`
	BigBlind        int64     `json:"big_blind"`
	Ante            int64     `json:"ante"`
	DurationMinutes int       `json:"duration_minutes"`
	Trigger         string    `json:"trigger"` // "expiry" or "manual"
	At              time.Time `json:"at"`
}

type Notifier interface {
	NotifyBlindChange(ctx context.Context, change BlindChange) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyBlindChange(context.Context, BlindChange) error { return nil }

// PushNotifier posts blind changes to the notification service.
type PushNotifier struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewPushNotifier(url, token string) *PushNotifier {
	return &PushNotifier{
		URL:    url,
		Token:  token,
		Client: utils.HTTPClient,
	}
}

func (n *PushNotifier) NotifyBlindChange(ctx context.Context, change BlindChange) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "blind_change",
		"payload": change,
	})
	if err != nil {
		return fmt.Errorf("encode blind change: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Named("notifier").Debug(ctx, "notification rejected",
			logger.Int("status", resp.StatusCode),
			logger.String("body", string(body)),
		)
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
