package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Notification{},
		&models.OneTimePasscode{},
		&models.AuthFlow{},
		&models.ForumTopic{},
		&models.ForumPost{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.Project{},
		&models.ProjectMember{},
		&models.ProjectUpdate{},
		&models.UserWarning{},
		&models.CacheEntry{},
	)
}

// Seed inserts rows that must exist once the schema is in place.
type Seed func(tx *gorm.DB) error

// SeedData applies seeds in order inside a single transaction.
func SeedData(db *gorm.DB, seeds ...Seed) error {
	if len(seeds) == 0 {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, seed := range seeds {
			if seed == nil {
				continue
			}
			if err := seed(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// SuperuserSeed creates the bootstrap administrator unless a user with the
// same email already exists. Password must already be hashed.
func SuperuserSeed(user models.User) Seed {
	return func(tx *gorm.DB) error {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if email == "" || strings.TrimSpace(user.Username) == "" || user.Password == "" {
			return errors.New("superuser seed requires username, email and password hash")
		}

		user.Email = email
		user.IsActive = true
		user.IsStaff = true
		user.IsSuperuser = true

		return tx.Where(models.User{Email: email}).Attrs(user).FirstOrCreate(&models.User{}).Error
	}
}
