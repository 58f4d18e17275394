package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLog rows are append-only provenance records. They are written
// inside the same transaction as the mutation they describe and are
// never updated or deleted.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityType string    `gorm:"size:50;not null"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Action     string    `gorm:"size:50;not null"`
	ActorID    uuid.UUID `gorm:"type:uuid;not null"`
	Payload    JSONB     `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}
