package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

var (
	ErrAPIKeyNotConfigured = errors.New("api key not configured")
	ErrAPIKeyInvalid       = errors.New("api key invalid")
)

// SecurityService manages the optional API key that gates mutating
// endpoints. Only the bcrypt hash is persisted; the plaintext key is
// shown once at generation time.
type SecurityService struct {
	db *gorm.DB
}

// NewSecurityService returns a SecurityService using the provided DB
func NewSecurityService(db *gorm.DB) *SecurityService {
	return &SecurityService{db: db}
}

// Enabled reports whether an API key hash is configured.
func (s *SecurityService) Enabled() bool {
	var setting models.Setting
	err := s.db.Where("key = ?", models.SettingAPIKeyHash).First(&setting).Error
	return err == nil && setting.Value != ""
}

// GenerateAPIKey creates a fresh key, stores its bcrypt hash, and
// returns the plaintext exactly once.
func (s *SecurityService) GenerateAPIKey() (string, error) {
	keyBytes := make([]byte, 24)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", err
	}
	key := hex.EncodeToString(keyBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	setting := models.Setting{Key: models.SettingAPIKeyHash, Value: string(hash)}
	if err := s.db.Where(models.Setting{Key: models.SettingAPIKeyHash}).
		Assign(models.Setting{Key: models.SettingAPIKeyHash, Value: string(hash)}).
		FirstOrCreate(&setting).Error; err != nil {
		return "", err
	}

	return key, nil
}

// VerifyAPIKey checks a presented key against the stored hash.
func (s *SecurityService) VerifyAPIKey(key string) error {
	var setting models.Setting
	if err := s.db.Where("key = ?", models.SettingAPIKeyHash).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAPIKeyNotConfigured
		}
		return err
	}
	if setting.Value == "" {
		return ErrAPIKeyNotConfigured
	}

	if bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(key)) != nil {
		return ErrAPIKeyInvalid
	}
	return nil
}

// ClearAPIKey removes the configured key, disabling the gate.
func (s *SecurityService) ClearAPIKey() error {
	return s.db.Where("key = ?", models.SettingAPIKeyHash).Delete(&models.Setting{}).Error
}
