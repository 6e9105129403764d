package database

import (
	"context"
	"fmt"

	"github.com/chorusapp/chorus/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health checks the underlying database connection
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// SRS Cards

// CreateCard creates a new SRS card record
func (r *Repository) CreateCard(ctx context.Context, card *models.SRSCard) error {
	if card.ID == "" {
		card.ID = uuid.New().String()
	}

	query := `
		INSERT INTO srs_cards (id, video_id, video_title, text, start_time, end_time,
		                       audio_base64, created, interval, repetition, ease_factor,
		                       next_review, last_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		card.ID, card.VideoID, card.VideoTitle, card.Text, card.StartTime, card.EndTime,
		card.AudioBase64, card.Created, card.Interval, card.Repetition, card.EaseFactor,
		card.NextReview, card.LastReview,
	)

	if err != nil {
		return fmt.Errorf("%w: failed to create card: %v", models.ErrStorage, err)
	}

	return nil
}

// GetCard retrieves an SRS card by ID
func (r *Repository) GetCard(ctx context.Context, id string) (*models.SRSCard, error) {
	var card models.SRSCard

	query := `
		SELECT id, video_id, video_title, text, start_time, end_time, audio_base64,
		       created, interval, repetition, ease_factor, next_review, last_review
		FROM srs_cards
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&card.ID, &card.VideoID, &card.VideoTitle, &card.Text, &card.StartTime, &card.EndTime,
		&card.AudioBase64, &card.Created, &card.Interval, &card.Repetition, &card.EaseFactor,
		&card.NextReview, &card.LastReview,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("card not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get card: %v", models.ErrStorage, err)
	}

	return &card, nil
}

// UpdateCard persists the scheduling state of a reviewed card
func (r *Repository) UpdateCard(ctx context.Context, card *models.SRSCard) error {
	query := `
		UPDATE srs_cards
		SET interval = $2, repetition = $3, ease_factor = $4, next_review = $5, last_review = $6
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		card.ID, card.Interval, card.Repetition, card.EaseFactor, card.NextReview, card.LastReview,
	)

	if err != nil {
		return fmt.Errorf("%w: failed to update card: %v", models.ErrStorage, err)
	}

	return nil
}

// ListCards retrieves all SRS cards in stored order
func (r *Repository) ListCards(ctx context.Context) ([]models.SRSCard, error) {
	query := `
		SELECT id, video_id, video_title, text, start_time, end_time, audio_base64,
		       created, interval, repetition, ease_factor, next_review, last_review
		FROM srs_cards
		ORDER BY created ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list cards: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var cards []models.SRSCard
	for rows.Next() {
		var card models.SRSCard
		err := rows.Scan(
			&card.ID, &card.VideoID, &card.VideoTitle, &card.Text, &card.StartTime, &card.EndTime,
			&card.AudioBase64, &card.Created, &card.Interval, &card.Repetition, &card.EaseFactor,
			&card.NextReview, &card.LastReview,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan card: %v", models.ErrStorage, err)
		}
		cards = append(cards, card)
	}

	return cards, nil
}

// DeleteCard removes a card. Cards are never deleted automatically; this
// backs the explicit delete action only.
func (r *Repository) DeleteCard(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM srs_cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete card: %v", models.ErrStorage, err)
	}
	return nil
}

// Practice History

// AppendHistory appends one history entry and trims the log to the most
// recent models.HistoryLimit entries, oldest first.
func (r *Repository) AppendHistory(ctx context.Context, entry *models.PracticeHistoryEntry) error {
	query := `
		INSERT INTO practice_history (video_id, video_title, subtitle_text,
		                              start_time, end_time, timestamp, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.VideoID, entry.VideoTitle, entry.SubtitleText,
		entry.StartTime, entry.EndTime, entry.Timestamp, entry.Score,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append history: %v", models.ErrStorage, err)
	}

	// Keyed on ctid so entries sharing a timestamp trim one row at a time.
	trim := `
		DELETE FROM practice_history
		WHERE ctid NOT IN (
			SELECT ctid FROM practice_history
			ORDER BY timestamp DESC
			LIMIT $1
		)
	`
	if _, err := r.db.Pool.Exec(ctx, trim, models.HistoryLimit); err != nil {
		return fmt.Errorf("%w: failed to trim history: %v", models.ErrStorage, err)
	}

	return nil
}

// ListHistory retrieves history entries, most recent first
func (r *Repository) ListHistory(ctx context.Context, limit int) ([]models.PracticeHistoryEntry, error) {
	if limit <= 0 || limit > models.HistoryLimit {
		limit = models.HistoryLimit
	}

	query := `
		SELECT video_id, video_title, subtitle_text, start_time, end_time, timestamp, score
		FROM practice_history
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list history: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var entries []models.PracticeHistoryEntry
	for rows.Next() {
		var entry models.PracticeHistoryEntry
		err := rows.Scan(
			&entry.VideoID, &entry.VideoTitle, &entry.SubtitleText,
			&entry.StartTime, &entry.EndTime, &entry.Timestamp, &entry.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan history entry: %v", models.ErrStorage, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// CountHistory returns the number of retained history entries
func (r *Repository) CountHistory(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM practice_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count history: %v", models.ErrStorage, err)
	}
	return count, nil
}

// AverageScore returns the mean score across retained history entries.
// Unscorable attempts carry a zero score and count toward the mean.
func (r *Repository) AverageScore(ctx context.Context) (float64, error) {
	var avg *float64
	err := r.db.Pool.QueryRow(ctx, `SELECT AVG(score) FROM practice_history WHERE score IS NOT NULL`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to average scores: %v", models.ErrStorage, err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// Users

// GetUserByAPIKey retrieves a user by API key for request authentication
func (r *Repository) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	var user models.User

	query := `
		SELECT id, email, password_hash, api_key, is_active, created_at, updated_at
		FROM users
		WHERE api_key = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, apiKey).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.APIKey,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get user: %v", models.ErrStorage, err)
	}

	return &user, nil
}

// ValidateAPIKey implements the middleware validator interface
func (r *Repository) ValidateAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	return r.GetUserByAPIKey(ctx, apiKey)
}
