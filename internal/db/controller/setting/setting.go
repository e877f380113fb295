// Package setting stores named runtime values, such as the auto reconcile cursors.
package setting

import (
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

const (
	nameQueryPattern = "name = ?"
)

var (
	// ErrSettingNotFound is returned when a setting is not found.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrSettingNameEmpty is returned when a setting name is empty.
	ErrSettingNameEmpty = errors.New("setting name cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// Get retrieves a setting by its name.
func Get(db *gorm.DB, name string) (*models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if name == "" {
		return nil, ErrSettingNameEmpty
	}

	var s models.Setting

	result := db.Where(nameQueryPattern, name).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}

		return nil, result.Error
	}

	return &s, nil
}

// ListPrefix returns all settings whose name starts with prefix, ordered by name.
func ListPrefix(db *gorm.DB, prefix string) ([]models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var settings []models.Setting

	result := db.Where("name LIKE ?", prefix+"%").Order("name").Find(&settings)
	if result.Error != nil {
		return nil, result.Error
	}

	return settings, nil
}

// Set creates or updates a setting by name.
func Set(db *gorm.DB, name string, value []byte) (*models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if name == "" {
		return nil, ErrSettingNameEmpty
	}

	var s models.Setting

	result := db.Where(nameQueryPattern, name).First(&s)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		s = models.Setting{Name: name, Value: value}
		result = db.Create(&s)
	case result.Error != nil:
		return nil, result.Error
	default:
		s.Value = value
		result = db.Save(&s)
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return &s, nil
}

// Delete deletes a setting by name.
func Delete(db *gorm.DB, name string) error {
	if db == nil {
		return ErrDBNil
	}

	if name == "" {
		return ErrSettingNameEmpty
	}

	result := db.Where(nameQueryPattern, name).Delete(&models.Setting{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSettingNotFound
	}

	return nil
}

// GetJSON decodes the named setting into v.
func GetJSON(db *gorm.DB, name string, v any) error {
	s, err := Get(db, name)
	if err != nil {
		return err
	}

	return pkgerrors.Wrapf(json.Unmarshal(s.Value, v), "decode setting %s", name)
}

// SetJSON stores v JSON encoded under name.
func SetJSON(db *gorm.DB, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return pkgerrors.Wrapf(err, "encode setting %s", name)
	}

	_, err = Set(db, name, b)

	return err
}
