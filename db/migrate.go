package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/nnthruslpn/telegram-bot/db/models"
)

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&models.EscalationJob{},
		&models.EscalationRun{},
	)
}
