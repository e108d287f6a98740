package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type CustomDataStore struct {
	db DB
}

func NewCustomDataStore(db DB) *CustomDataStore {
	return &CustomDataStore{db: db}
}

// Set stores value under key for the user; the last write wins.
func (s *CustomDataStore) Set(ctx context.Context, userID, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_custom_data (user_id, data_key, data_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, data_key) DO UPDATE
		SET data_value = EXCLUDED.data_value, updated_at = now()`, userID, key, value)
	return err
}

func (s *CustomDataStore) Get(ctx context.Context, userID, key string) (string, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT data_value FROM user_custom_data WHERE user_id = $1 AND data_key = $2`, userID, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}
