package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("profiles: database handle is required")

// Store reads and writes user profiles.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store bound to the provided gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Store{db: db}, nil
}

// GetProfiles loads all requested profiles in one query. Users without a stored
// profile are absent from the returned map.
func (s *Store) GetProfiles(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	unique := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		trimmed := strings.TrimSpace(userID)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}

	result := make(map[string]Profile, len(unique))
	if len(unique) == 0 {
		return result, nil
	}

	var rows []Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("profiles: batch load %d profiles: %w", len(unique), err)
	}
	for _, row := range rows {
		result[row.UserID] = row
	}
	return result, nil
}

// Upsert stores or replaces a profile.
func (s *Store) Upsert(ctx context.Context, profile Profile) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return fmt.Errorf("profiles: user id is required")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&profile).Error
	if err != nil {
		return fmt.Errorf("profiles: upsert %s: %w", profile.UserID, err)
	}
	return nil
}
