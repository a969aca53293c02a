package domain

import (
	"strings"
	"time"
)

type SheetState string

const (
	SheetOpen      SheetState = "OPEN"
	SheetFinalized SheetState = "FINALIZED"
	SheetCancelled SheetState = "CANCELLED"
)

func ParseSheetState(raw string) (SheetState, bool) {
	switch SheetState(strings.ToUpper(strings.TrimSpace(raw))) {
	case SheetOpen:
		return SheetOpen, true
	case SheetFinalized:
		return SheetFinalized, true
	case SheetCancelled:
		return SheetCancelled, true
	}
	return "", false
}

func (s SheetState) Terminal() bool {
	return s == SheetFinalized || s == SheetCancelled
}

type Sheet struct {
	ID          string
	TenantID    string
	OperatorID  string
	PlatformID  string
	VehicleRef  string
	State       SheetState
	CreatedAt   time.Time
	FinalizedAt *time.Time
	CancelledAt *time.Time
	ClosedBy    string
	Version     int64
}

// CheckTransition validates a move from the sheet's current state to target.
// It does not consult the checklist; finalize eligibility is decided by the caller.
func (s Sheet) CheckTransition(target SheetState) error {
	if s.State.Terminal() {
		return ErrTerminalState
	}
	switch {
	case s.State == SheetOpen && target == SheetFinalized:
		return nil
	case s.State == SheetOpen && target == SheetCancelled:
		return nil
	}
	return ErrInvalidTransition
}

// Close applies a validated terminal transition.
func (s Sheet) Close(target SheetState, by string, at time.Time) Sheet {
	at = at.UTC()
	s.State = target
	s.ClosedBy = by
	switch target {
	case SheetFinalized:
		s.FinalizedAt = &at
	case SheetCancelled:
		s.CancelledAt = &at
	}
	s.Version++
	return s
}

type ListSheetsFilter struct {
	TenantID         string
	State            SheetState
	PlatformID       string
	OperatorID       string
	IncludeCancelled bool
	Limit            int
}
