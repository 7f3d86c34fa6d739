package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeCookingExperience = "2026-10-01_normalize_cooking_experience"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeCookingExperience, apply: normalizeCookingExperience},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeCookingExperience lowercases legacy values so host ranking recognises them.
func normalizeCookingExperience(db *gorm.DB) error {
	return db.Model(&profiles.Profile{}).
		Where("cooking_experience <> LOWER(TRIM(cooking_experience))").
		Update("cooking_experience", gorm.Expr("LOWER(TRIM(cooking_experience))")).Error
}
