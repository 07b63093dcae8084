package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

func TestOpenSQLiteMemoryIsIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, AutoMigrate(first))
	require.True(t, first.Migrator().HasTable(&models.Notification{}))
	require.False(t, second.Migrator().HasTable(&models.Notification{}))
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, table := range []interface{}{
		&models.User{},
		&models.OneTimePasscode{},
		&models.AuthFlow{},
		&models.Notification{},
		&models.ConversationParticipant{},
		&models.ProjectMember{},
		&models.UserWarning{},
		&models.CacheEntry{},
	} {
		require.True(t, migrator.HasTable(table), "expected table for %T", table)
	}
}

func TestOneTimePasscodeEmailIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	first := models.OneTimePasscode{Email: "a@x.com", CodeHash: "h1", Purpose: models.OTPPurposeLogin}
	require.NoError(t, db.Create(&first).Error)

	second := models.OneTimePasscode{Email: "a@x.com", CodeHash: "h2", Purpose: models.OTPPurposeLogin}
	require.Error(t, db.Create(&second).Error)
}

func TestSuperuserSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	seed := SuperuserSeed(models.User{Username: "admin", Email: " Admin@Example.com ", Password: "hash"})
	require.NoError(t, AutoMigrateAndSeed(db, seed))
	require.NoError(t, AutoMigrateAndSeed(db, seed))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	require.Equal(t, "admin@example.com", users[0].Email)
	require.True(t, users[0].IsSuperuser)
	require.True(t, users[0].IsActive)
}

func TestSuperuserSeedRequiresFields(t *testing.T) {
	db := openTestDB(t)
	require.Error(t, AutoMigrateAndSeed(db, SuperuserSeed(models.User{Email: "a@x.com"})))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
