package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnknownPlatform     = errors.New("unknown platform")
	ErrUnknownItem         = errors.New("unknown checklist item")
	ErrTerminalState       = errors.New("sheet is in a terminal state")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrIncompleteChecklist = errors.New("incomplete checklist")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConflict            = errors.New("conflict")
)

// IncompleteChecklistError is returned by a finalize attempt on a sheet whose
// required checklist items are not all covered. It matches ErrIncompleteChecklist.
type IncompleteChecklistError struct {
	SheetID string
	Missing []ChecklistItem
}

func (e *IncompleteChecklistError) Error() string {
	if e == nil {
		return ""
	}
	codes := make([]string, 0, len(e.Missing))
	for _, item := range e.Missing {
		codes = append(codes, item.Code)
	}
	return ErrIncompleteChecklist.Error() + ": missing " + strings.Join(codes, ",")
}

func (e *IncompleteChecklistError) Unwrap() error {
	return ErrIncompleteChecklist
}

func IsIncompleteChecklist(err error) (*IncompleteChecklistError, bool) {
	var incomplete *IncompleteChecklistError
	if errors.As(err, &incomplete) {
		return incomplete, true
	}
	return nil, false
}
