package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

// PhotoUpload carries raw photo bytes from the transport. When present and no
// blob reference is given, the bytes are written to the blob store first.
type PhotoUpload struct {
	ContentType string
	Filename    string
	Body        io.Reader
}

type VehiclePhotoInput struct {
	PhotoType string
	BlobRef   string
	Photo     *PhotoUpload
}

type ItemPhotoInput struct {
	ItemCode         string
	CheckDescription string
	Outcome          domain.CheckOutcome
	BlobRef          string
	Photo            *PhotoUpload
}

type AttachmentLedger struct {
	deps  Deps
	repos Repositories
}

func NewAttachmentLedger(deps Deps) *AttachmentLedger {
	deps = deps.withDefaults()
	return &AttachmentLedger{
		deps:  deps,
		repos: deps.Repos,
	}
}

// AddVehiclePhoto records a whole-vehicle photo. A missing, foreign or closed
// sheet is reported before anything about the input.
func (l *AttachmentLedger) AddVehiclePhoto(ctx context.Context, principal domain.Principal, sheetID string, in VehiclePhotoInput) (domain.Attachment, error) {
	sheet, err := l.admit(ctx, principal, sheetID)
	if err != nil {
		return domain.Attachment{}, err
	}
	photoType := strings.TrimSpace(in.PhotoType)
	if photoType == "" || len(photoType) > maxRefLength {
		return domain.Attachment{}, fmt.Errorf("%w: photo_type is required", domain.ErrInvalidArgument)
	}
	if !hasBlob(in.BlobRef, in.Photo) {
		return domain.Attachment{}, fmt.Errorf("%w: blob_ref or photo is required", domain.ErrInvalidArgument)
	}
	blobRef, err := l.resolveBlob(ctx, sheet, in.BlobRef, in.Photo)
	if err != nil {
		return domain.Attachment{}, err
	}
	return l.insert(ctx, principal, sheet.ID, domain.Attachment{
		Kind:      domain.AttachmentVehicle,
		PhotoType: photoType,
		BlobRef:   blobRef,
	}, nil)
}

// AddItemPhoto records a checklist item check, with or without a photo.
func (l *AttachmentLedger) AddItemPhoto(ctx context.Context, principal domain.Principal, sheetID string, in ItemPhotoInput) (domain.Attachment, error) {
	sheet, err := l.admit(ctx, principal, sheetID)
	if err != nil {
		return domain.Attachment{}, err
	}
	itemCode := strings.TrimSpace(in.ItemCode)
	if itemCode == "" {
		return domain.Attachment{}, fmt.Errorf("%w: item_code is required", domain.ErrInvalidArgument)
	}
	outcome := domain.CheckOutcome(strings.ToLower(strings.TrimSpace(string(in.Outcome))))
	if outcome != "" && !outcome.Valid() {
		return domain.Attachment{}, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidArgument, in.Outcome)
	}
	knownItem := func(sheet domain.Sheet) error {
		platform, ok := l.deps.Catalog.Platform(sheet.PlatformID)
		if !ok {
			return domain.ErrUnknownPlatform
		}
		if _, ok := platform.Item(itemCode); !ok {
			return domain.ErrUnknownItem
		}
		return nil
	}
	if err := knownItem(sheet); err != nil {
		return domain.Attachment{}, err
	}
	blobRef, err := l.resolveBlob(ctx, sheet, in.BlobRef, in.Photo)
	if err != nil {
		return domain.Attachment{}, err
	}
	// The catalog can be reloaded between here and the insert.
	return l.insert(ctx, principal, sheet.ID, domain.Attachment{
		Kind:             domain.AttachmentItem,
		ItemCode:         itemCode,
		CheckDescription: strings.TrimSpace(in.CheckDescription),
		Outcome:          outcome,
		BlobRef:          blobRef,
	}, knownItem)
}

// ListForSheet returns vehicle and item photos, each ordered by upload time
// then id.
func (l *AttachmentLedger) ListForSheet(ctx context.Context, principal domain.Principal, sheetID string) ([]domain.Attachment, []domain.Attachment, error) {
	sheet, err := l.repos.Sheets.Get(ctx, strings.TrimSpace(sheetID))
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(ctx, l.deps.Policy, principal, domain.ActionRead, domain.SheetResource(sheet)); err != nil {
		return nil, nil, err
	}
	list, err := l.repos.Attachments.ListBySheet(ctx, sheet.ID)
	if err != nil {
		return nil, nil, err
	}
	domain.SortAttachments(list)
	vehicle, items := domain.SplitAttachments(list)
	return vehicle, items, nil
}

func (l *AttachmentLedger) insert(ctx context.Context, principal domain.Principal, sheetID string, attachment domain.Attachment, check func(domain.Sheet) error) (domain.Attachment, error) {
	err := l.repos.Sheets.WithSheetLocked(ctx, strings.TrimSpace(sheetID), func(ctx context.Context, locked LockedSheet) error {
		sheet := locked.Sheet()
		if err := authorize(ctx, l.deps.Policy, principal, domain.ActionMutate, domain.SheetResource(sheet)); err != nil {
			return err
		}
		if sheet.State.Terminal() {
			return domain.ErrTerminalState
		}
		if check != nil {
			if err := check(sheet); err != nil {
				return err
			}
		}
		attachment.ID = uuid.NewString()
		attachment.TenantID = sheet.TenantID
		attachment.SheetID = sheet.ID
		attachment.UploadedAt = l.deps.Clock().UTC()
		attachment.UploadedBy = principal.OperatorID
		return locked.AddAttachment(ctx, attachment)
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	l.deps.Audit.EmitAttachmentAdded(ctx, principal, attachment)
	l.deps.Events.Publish(domain.SheetEvent{
		Type:         domain.SheetEventAttachmentAdded,
		TenantID:     attachment.TenantID,
		SheetID:      attachment.SheetID,
		OperatorID:   attachment.UploadedBy,
		AttachmentID: attachment.ID,
		ItemCode:     attachment.ItemCode,
		OccurredAt:   attachment.UploadedAt,
	})
	return attachment, nil
}

// admit checks that the sheet exists, that the principal may mutate it and
// that it still accepts attachments. insert repeats the last two under the
// sheet lock.
func (l *AttachmentLedger) admit(ctx context.Context, principal domain.Principal, sheetID string) (domain.Sheet, error) {
	sheet, err := l.repos.Sheets.Get(ctx, strings.TrimSpace(sheetID))
	if err != nil {
		return domain.Sheet{}, err
	}
	if err := authorize(ctx, l.deps.Policy, principal, domain.ActionMutate, domain.SheetResource(sheet)); err != nil {
		return domain.Sheet{}, err
	}
	if sheet.State.Terminal() {
		return domain.Sheet{}, domain.ErrTerminalState
	}
	return sheet, nil
}

func hasBlob(blobRef string, photo *PhotoUpload) bool {
	return strings.TrimSpace(blobRef) != "" || (photo != nil && photo.Body != nil)
}

// resolveBlob stores uploaded bytes, if any, for an admitted sheet. The lock
// is not held during the upload.
func (l *AttachmentLedger) resolveBlob(ctx context.Context, sheet domain.Sheet, blobRef string, photo *PhotoUpload) (string, error) {
	blobRef = strings.TrimSpace(blobRef)
	if blobRef != "" || photo == nil || photo.Body == nil {
		return blobRef, nil
	}
	if l.deps.Blobs == nil {
		return "", fmt.Errorf("%w: photo uploads are not enabled", domain.ErrInvalidArgument)
	}
	key := path.Join(sheet.TenantID, sheet.ID, uuid.NewString()+extensionFor(photo))
	ref, err := l.deps.Blobs.Put(ctx, key, photo.ContentType, photo.Body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return "", err
		}
		l.deps.Logger.Error("blob put failed", zap.String("sheet_id", sheet.ID), zap.Error(err))
		return "", fmt.Errorf("%w: blob store: %v", domain.ErrStoreUnavailable, err)
	}
	return ref, nil
}

func extensionFor(photo *PhotoUpload) string {
	if ext := strings.ToLower(path.Ext(photo.Filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch strings.ToLower(photo.ContentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	return ".jpg"
}
