package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"journal-gamification/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed badges.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Badges []models.BadgeDefinition `yaml:"badges"`
}

// DefaultCatalog returns the built-in badge catalog.
func DefaultCatalog() ([]models.BadgeDefinition, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog file; an empty path means the built-in one.
func LoadCatalog(path string) ([]models.BadgeDefinition, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and normalizes a YAML catalog. Missing ids are derived from the
// name, missing names from the id; rarity defaults to common.
func ParseCatalog(data []byte) ([]models.BadgeDefinition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}

	title := cases.Title(language.English)
	seen := make(map[string]bool, len(f.Badges))
	out := make([]models.BadgeDefinition, 0, len(f.Badges))
	for i, b := range f.Badges {
		if b.ID == "" {
			b.ID = slug.Make(b.Name)
		} else {
			b.ID = slug.Make(b.ID)
		}
		if b.ID == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("badges[%d].id", i), Reason: "id or name is required"}
		}
		if b.Name == "" {
			b.Name = title.String(strings.ReplaceAll(b.ID, "-", " "))
		}
		if seen[b.ID] {
			return nil, &ValidationError{Field: fmt.Sprintf("badges[%d].id", i), Reason: "duplicate id " + b.ID}
		}
		seen[b.ID] = true
		if b.Threshold <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("badges[%d].threshold", i), Reason: "must be positive"}
		}
		if b.XPReward < 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("badges[%d].xp_reward", i), Reason: "must not be negative"}
		}
		if b.Rarity == "" {
			b.Rarity = models.RarityCommon
		}
		// Unknown kinds are kept: the evaluator skips and logs them at runtime.
		out = append(out, b)
	}
	return out, nil
}

// SeedCatalog inserts definitions that are not present yet. Existing rows are never updated.
func SeedCatalog(db *gorm.DB, defs []models.BadgeDefinition) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defs)
	if res.Error != nil {
		return 0, persistErr("seed badge catalog", res.Error)
	}
	return res.RowsAffected, nil
}
