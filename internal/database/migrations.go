package database

import (
	"gorm.io/gorm"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Request{},
		&models.Offer{},
		&models.NegotiationEntry{},
		&models.Ride{},
		&models.DeviceToken{},
	)
	if err != nil {
		return err
	}

	// At most one offer per request may hold the job.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_selected
		ON offers (request_id) WHERE status IN ('selected', 'completed')`).Error; err != nil {
		return err
	}

	statusChecks := []struct{ table, constraint, check string }{
		{"service_requests", "service_requests_status_check", "status IN ('active', 'driver_selected', 'completed', 'cancelled')"},
		{"service_requests", "service_requests_urgency_check", "urgency IN ('low', 'medium', 'high')"},
		{"offers", "offers_status_check", "status IN ('pending', 'accepted', 'negotiating', 'selected', 'rejected', 'completed')"},
		{"negotiation_entries", "negotiation_entries_status_check", "status IN ('pending', 'accepted', 'rejected')"},
		{"negotiation_entries", "negotiation_entries_role_check", "role IN ('client', 'driver')"},
		{"rides", "rides_status_check", "status IN ('waiting', 'on_the_way', 'arrived', 'in_progress', 'completed', 'cancelled')"},
	}
	for _, c := range statusChecks {
		if err := db.Exec(`ALTER TABLE ` + c.table + ` DROP CONSTRAINT IF EXISTS ` + c.constraint).Error; err != nil {
			return err
		}
		if err := db.Exec(`ALTER TABLE ` + c.table + ` ADD CONSTRAINT ` + c.constraint + ` CHECK (` + c.check + `)`).Error; err != nil {
			return err
		}
	}

	return nil
}
