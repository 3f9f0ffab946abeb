package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), logger.Discard)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t)

	assert.True(t, db.Migrator().HasTable(&User{}))
	assert.True(t, db.Migrator().HasTable("profiles"))
	assert.True(t, db.Migrator().HasTable(&models.Resource{}))
}

func TestUser_UniqueEmail(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&User{Email: "a@b.c", Token: "t1"}).Error)
	err := db.Create(&User{Email: "a@b.c", Token: "t2"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestUser_PasswordUsersShareNullProvider(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&User{Email: "a@b.c", Token: "t1"}).Error)
	require.NoError(t, db.Create(&User{Email: "d@e.f", Token: "t2"}).Error)
}

func TestResource_TagsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	in := models.Resource{
		ID:       uuid.New().String(),
		UserID:   1,
		Name:     "Go",
		URL:      "https://go.dev",
		Category: models.CategoryDocumentation,
		Tags:     models.Tags{"lang", "google"},
	}
	require.NoError(t, db.Create(&in).Error)

	out := models.Resource{}
	require.NoError(t, db.First(&out, "id = ?", in.ID).Error)
	assert.Equal(t, models.Tags{"lang", "google"}, out.Tags)
	assert.Nil(t, out.UpdatedAt)
}

func TestUser_Session(t *testing.T) {
	name := "Ada"
	u := User{GormForkedModel: GormForkedModel{ID: 3}, Email: "ada@x.y", DisplayName: &name}

	s := u.Session()
	assert.Equal(t, uint64(3), s.UserID)
	assert.Equal(t, "ada@x.y", s.Email)
	assert.Equal(t, &name, s.DisplayName)
}
