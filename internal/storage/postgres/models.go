package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StampModel maps to the "stamps" table.
type StampModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ApprovalID string    `gorm:"not null;index"`
	Approved   bool      `gorm:"not null;default:false"`
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (StampModel) TableName() string { return "stamps" }

// SignetModel maps to the "signets" table.
// Signets are never deleted; revocation columns are filled in place.
type SignetModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	StampID      uuid.UUID `gorm:"type:uuid;not null;index"`
	SignoffID    string    `gorm:"not null"`
	UserID       string    `gorm:"not null;index"`
	Sigil        string    `gorm:"not null"`
	SignedAt     time.Time `gorm:"not null;index"`
	RevokedBy    string
	RevokeReason string
	RevokedAt    *time.Time
}

func (SignetModel) TableName() string { return "signets" }

// ProcessModel maps to the "processes" table.
type ProcessModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"not null;index"`
	Subject   string    `gorm:"not null"`
	State     string
	Stamps    JSONB `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProcessModel) TableName() string { return "processes" }

// RoleModel maps to the "roles" table.
type RoleModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name        string            `gorm:"not null;uniqueIndex"`
	Permissions []PermissionModel `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RoleModel) TableName() string { return "roles" }

// PermissionModel maps to the "permissions" table.
type PermissionModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name   string    `gorm:"not null"`
}

func (PermissionModel) TableName() string { return "permissions" }

// UserRoleModel maps to the "user_roles" table. One role per user.
type UserRoleModel struct {
	UserID string    `gorm:"primaryKey"`
	RoleID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (UserRoleModel) TableName() string { return "user_roles" }

// JSONB is a json.RawMessage that implements the driver.Valuer and sql.Scanner interfaces
// for GORM JSONB columns.
type JSONB json.RawMessage

// Value stores the raw JSON as text so both jsonb and SQLite TEXT columns accept it.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

// Scan reads a JSON column.
func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("scanning JSONB from %T", src)
	}
	return nil
}

// AuditEventModel maps to the "audit_events" table.
// No UpdatedAt or DeletedAt: audit log is append-only and immutable.
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID string    `gorm:"index"`
	UserID        string    `gorm:"not null;index"`
	Action        string    `gorm:"not null"`
	ProcessID     string    `gorm:"index"`
	ApprovalID    string
	SignoffID     string
	Parameters    JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	Result        string `gorm:"not null"`
	Reason        string
	Error         string
	CreatedAt     time.Time `gorm:"index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
