package domain

import (
	"encoding/json"
	"time"
)

type SheetEventType string

const (
	SheetEventCreated         SheetEventType = "sheet.created"
	SheetEventFinalized       SheetEventType = "sheet.finalized"
	SheetEventCancelled       SheetEventType = "sheet.cancelled"
	SheetEventAttachmentAdded SheetEventType = "attachment.added"
	SheetEventDeleted         SheetEventType = "sheet.deleted"
)

// SheetEvent is the lifecycle notification published after a committed change.
type SheetEvent struct {
	Type         SheetEventType `json:"type"`
	TenantID     string         `json:"tenant_id"`
	SheetID      string         `json:"sheet_id"`
	OperatorID   string         `json:"operator_id,omitempty"`
	PlatformID   string         `json:"platform_id,omitempty"`
	State        SheetState     `json:"state,omitempty"`
	AttachmentID string         `json:"attachment_id,omitempty"`
	ItemCode     string         `json:"item_code,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

func (e SheetEvent) Key() string {
	return e.SheetID
}

func (e SheetEvent) Yield() []byte {
	b, _ := json.Marshal(e)
	return b
}

// EventPublisher delivers lifecycle events asynchronously; delivery failures
// are reported by the implementation, never to the caller.
type EventPublisher interface {
	Publish(event SheetEvent)
	Close() error
}
