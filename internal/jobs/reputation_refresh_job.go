package jobs

import (
	"log"
	"sync"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/services"

	"gorm.io/gorm"
)

// ReputationRefreshJob periodically recalculates scores for recently
// active users so cached tiers and restrictions track behavior without an
// explicit recalculation call.
type ReputationRefreshJob struct {
	db      *gorm.DB
	service *services.ReputationService
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
}

func NewReputationRefreshJob(db *gorm.DB, service *services.ReputationService) *ReputationRefreshJob {
	return &ReputationRefreshJob{
		db:      db,
		service: service,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the periodic refresh job
func (j *ReputationRefreshJob) Start(interval time.Duration) {
	go func() {
		defer close(j.done)

		// Run immediately on start
		if err := j.refreshActiveUsers(); err != nil {
			log.Printf("Initial reputation refresh error: %v", err)
		}

		// Then run periodically until stopped
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := j.refreshActiveUsers(); err != nil {
					log.Printf("Reputation refresh error: %v", err)
				}
			case <-j.quit:
				return
			}
		}
	}()
}

// Stop terminates the refresh loop and waits for it to exit. Safe to call
// more than once.
func (j *ReputationRefreshJob) Stop() {
	j.stop.Do(func() {
		close(j.quit)
	})
	<-j.done
}

// refreshActiveUsers recalculates every user with a post or message in the
// trailing 24 hours.
func (j *ReputationRefreshJob) refreshActiveUsers() error {
	since := time.Now().Add(-24 * time.Hour)

	var userIDs []uint
	if err := j.db.Model(&models.Post{}).
		Where("created_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error; err != nil {
		return err
	}

	var messageUserIDs []uint
	if err := j.db.Model(&models.ChatMessage{}).
		Where("created_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &messageUserIDs).Error; err != nil {
		return err
	}

	seen := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		seen[id] = true
	}
	for _, id := range messageUserIDs {
		if !seen[id] {
			userIDs = append(userIDs, id)
			seen[id] = true
		}
	}

	refreshed := 0
	for _, userID := range userIDs {
		if _, err := j.service.CalculateUserScore(userID); err != nil {
			log.Printf("Failed to refresh reputation for user %d: %v", userID, err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Printf("Refreshed reputation for %d active users", refreshed)
	}
	return nil
}
