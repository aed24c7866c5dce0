package database

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/users"
)

const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123"
)

// seedDefaults inserts the initial admin account and shop settings on a
// fresh database. Existing rows are left untouched.
func seedDefaults(db *gorm.DB, logger *zap.Logger) error {
	var userCount int64
	if err := db.Model(&users.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount == 0 {
		now := time.Now().UnixMilli()
		admin := users.User{
			ID:              uuid.NewString(),
			Username:        seedAdminUsername,
			Role:            users.RoleAdmin,
			FullName:        "Administrator",
			IsActive:        true,
			CreatedAtMillis: now,
			UpdatedAtMillis: now,
		}
		if err := admin.SetPassword(seedAdminPassword); err != nil {
			return err
		}
		if err := db.Create(&admin).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("seeded default admin account", zap.String("username", seedAdminUsername))
		}
	}

	var settingCount int64
	if err := db.Model(&settings.AppSetting{}).Count(&settingCount).Error; err != nil {
		return err
	}
	if settingCount == 0 {
		now := time.Now().UnixMilli()
		defaults := []settings.AppSetting{
			{Key: settings.KeyShopName, Value: "Toko Saya", UpdatedAtMillis: now},
			{Key: settings.KeyFooterLine1, Value: "Terima kasih telah berbelanja", UpdatedAtMillis: now},
			{Key: settings.KeyFooterLine2, Value: "", UpdatedAtMillis: now},
			{Key: settings.KeyLogoPath, Value: "", UpdatedAtMillis: now},
		}
		if err := db.Create(&defaults).Error; err != nil {
			return err
		}
	}

	return nil
}
