package domain

import (
	"context"
	"io"
	"sort"
	"time"
)

type AttachmentKind string

const (
	AttachmentVehicle AttachmentKind = "vehicle"
	AttachmentItem    AttachmentKind = "item"
)

type CheckOutcome string

const (
	OutcomePass        CheckOutcome = "pass"
	OutcomeFail        CheckOutcome = "fail"
	OutcomeObservation CheckOutcome = "observation"
)

func (o CheckOutcome) Valid() bool {
	switch o {
	case OutcomePass, OutcomeFail, OutcomeObservation:
		return true
	}
	return false
}

type Attachment struct {
	ID               string
	TenantID         string
	SheetID          string
	Kind             AttachmentKind
	PhotoType        string
	ItemCode         string
	CheckDescription string
	Outcome          CheckOutcome
	BlobRef          string
	UploadedAt       time.Time
	UploadedBy       string
}

// SortAttachments orders by upload time, breaking ties by id.
func SortAttachments(list []Attachment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UploadedAt.Before(list[j].UploadedAt)
	})
}

// SplitAttachments partitions a sorted list by kind, preserving order.
func SplitAttachments(list []Attachment) (vehicle []Attachment, items []Attachment) {
	vehicle = make([]Attachment, 0, len(list))
	items = make([]Attachment, 0, len(list))
	for _, a := range list {
		if a.Kind == AttachmentItem {
			items = append(items, a)
			continue
		}
		vehicle = append(vehicle, a)
	}
	return vehicle, items
}

type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
}
