package db

import "time"

type OperatorModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"not null"`
	DisplayName string    `gorm:"not null"`
	Login       string    `gorm:"not null"`
	SecretHash  string    `gorm:"not null"`
	Role        string    `gorm:"not null"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (OperatorModel) TableName() string { return "operators" }

type SheetModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"not null"`
	OperatorID  string    `gorm:"type:uuid;not null"`
	PlatformID  string    `gorm:"not null"`
	VehicleRef  string    `gorm:"not null"`
	State       string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	FinalizedAt *time.Time
	CancelledAt *time.Time
	ClosedBy    string `gorm:"not null"`
	Version     int64  `gorm:"not null"`
}

func (SheetModel) TableName() string { return "sheets" }

type AttachmentModel struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	TenantID         string    `gorm:"not null"`
	SheetID          string    `gorm:"type:uuid;not null"`
	Kind             string    `gorm:"not null"`
	PhotoType        string    `gorm:"not null"`
	ItemCode         string    `gorm:"not null"`
	CheckDescription string    `gorm:"not null"`
	Outcome          string    `gorm:"not null"`
	BlobRef          string    `gorm:"not null"`
	UploadedAt       time.Time `gorm:"not null"`
	UploadedBy       string    `gorm:"not null"`
}

func (AttachmentModel) TableName() string { return "attachments" }

type AuditEventModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	TenantID      string    `gorm:"not null"`
	Seq           int64     `gorm:"not null"`
	EventType     string    `gorm:"not null"`
	PayloadJSON   []byte    `gorm:"type:jsonb;not null"`
	PayloadHash   string    `gorm:"not null"`
	ActorType     string    `gorm:"not null"`
	ActorID       *string   `gorm:"column:actor_id"`
	TargetType    string    `gorm:"not null"`
	TargetID      *string   `gorm:"column:target_id"`
	Result        string    `gorm:"not null"`
	ErrorCode     *string   `gorm:"column:error_code"`
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
