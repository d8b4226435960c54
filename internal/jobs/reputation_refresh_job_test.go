package jobs

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trust-engine/internal/models"
	"trust-engine/internal/services"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.ChatMessage{},
		&models.MarketplaceRating{},
		&models.UserReputation{},
		&models.ModerationLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func TestRefreshJobStartStop(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Username: "active"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	db.Create(&models.Post{UserID: user.ID, Content: "recent", CreatedAt: time.Now().Add(-time.Minute)})

	job := NewReputationRefreshJob(db, services.NewReputationService(db))
	job.Start(time.Hour)

	// Stop waits for the loop to exit, so the initial refresh has run by
	// the time it returns.
	job.Stop()

	select {
	case <-job.done:
	default:
		t.Fatal("Stop must not return before the refresh loop exits")
	}

	var rep models.UserReputation
	if err := db.Where("user_id = ?", user.ID).First(&rep).Error; err != nil {
		t.Fatalf("initial refresh should create a reputation record: %v", err)
	}
	if rep.Score == 0 {
		t.Errorf("refreshed score should be computed, got %d", rep.Score)
	}

	// A second Stop is a no-op, not a panic.
	job.Stop()
}
