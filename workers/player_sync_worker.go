package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poker-league/logger"
	"poker-league/models"
	"poker-league/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile is one profile as returned by the profile service.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DisplayName prefers the real name over the username.
func (p RemoteProfile) DisplayName() string {
	var parts []string
	for _, s := range []*string{p.FirstName, p.LastName} {
		if s != nil && strings.TrimSpace(*s) != "" {
			parts = append(parts, strings.TrimSpace(*s))
		}
	}
	if len(parts) == 0 {
		return p.Username
	}
	return strings.Join(parts, " ")
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// PlayerSyncWorker mirrors profile changes into the players table so the
// league can check rosters without calling the profile service.
type PlayerSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          logger.Logger
}

func NewPlayerSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration) *PlayerSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PlayerSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		log:          logger.Named("player_sync"),
	}
}

func (w *PlayerSyncWorker) Start(ctx context.Context) {
	w.log.Info(ctx, "starting player sync worker", logger.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *PlayerSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		w.log.Warn(ctx, "initial player sync failed", logger.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx, w.lastSyncTime(ctx)); err != nil {
				w.log.Error(ctx, "player sync failed", logger.Error(err))
			}
		case <-ctx.Done():
			w.log.Info(ctx, "player sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest profile change already mirrored.
func (w *PlayerSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	var latest models.Player
	err := w.db.WithContext(ctx).Unscoped().Order("updated_at DESC").Limit(1).Find(&latest).Error
	if err != nil || latest.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

// SyncOnce pulls the profiles changed since the given time and upserts them.
// It returns the number of players written.
func (w *PlayerSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode profile changes: %w", err)
	}

	written := 0
	for _, remote := range payload.Users {
		if remote.ExternalID == "" {
			continue
		}
		player := models.Player{
			ID:             uuid.NewString(),
			ExternalUserID: remote.ExternalID,
			DisplayName:    remote.DisplayName(),
			Email:          remote.Email,
			AvatarURL:      remote.ProfilePictureURL,
			CreatedAt:      remote.CreatedAt,
			UpdatedAt:      remote.UpdatedAt,
		}
		if remote.AccountStatus == "deactivated" || remote.AccountStatus == "suspended" {
			player.DeletedAt = gorm.DeletedAt{Time: remote.UpdatedAt, Valid: true}
		}

		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "email", "avatar_url", "updated_at", "deleted_at",
			}),
		}).Create(&player).Error; err != nil {
			w.log.Warn(ctx, "player upsert failed",
				logger.String("external_id", remote.ExternalID),
				logger.Error(err),
			)
			continue
		}
		written++
	}

	if written > 0 {
		w.log.Info(ctx, "players synced",
			logger.Int("received", len(payload.Users)),
			logger.Int("written", written),
		)
	}
	return written, nil
}
