package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReceiptRecord is one applied instruction, successful or not.
type ReceiptRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Instruction string    `gorm:"index"`
	Sender      string    `gorm:"index"`
	Success     bool      `gorm:"index"`
	Code        string
	Class       string
	Error       string
	Matured     int
	StateRoot   string
	Result      string        `gorm:"type:text"`
	AppliedAt   time.Time     `gorm:"index"`
	Events      []EventRecord `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
}

// EventRecord is one event emitted by a receipt, in emission order.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey"`
	ReceiptID  uuid.UUID `gorm:"type:uuid;index"`
	Seq        int
	Type       string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	AppliedAt  time.Time `gorm:"index"`
}

// AutoMigrate creates or updates the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReceiptRecord{}, &EventRecord{})
}
