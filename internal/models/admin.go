package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB for PostgreSQL JSON support
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(raw, j)
}

// Setting is an admin-editable key/value that overrides config defaults
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// AdminLog records admin actions for audit trail
type AdminLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AdminID      int64     `gorm:"not null;index" json:"admin_id"`
	Action       string    `gorm:"size:100;not null" json:"action"`
	ResourceType string    `gorm:"size:50" json:"resource_type"`
	ResourceID   *uint     `json:"resource_id"`
	RequestID    string    `gorm:"size:36;index" json:"request_id"`
	Details      JSONB     `gorm:"type:jsonb" json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AdminLog) TableName() string {
	return "admin_logs"
}
