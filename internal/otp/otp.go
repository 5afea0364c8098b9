package otp

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the two scopes a code can be bound to.
type Kind string

const (
	// KindSlot binds a code to a single bookable lab slot.
	KindSlot Kind = "slot"
	// KindClass binds a code to a (department, period, date) class session.
	KindClass Kind = "class"
)

// Scope identifies the entity a one-time code is bound to. Exactly one
// active code exists per scope at any instant.
type Scope struct {
	Kind       Kind
	SlotID     string
	Department string
	Period     int
	Date       time.Time // midnight UTC, class scope only
}

// SlotScope returns the scope for a lab slot.
func SlotScope(slotID string) Scope {
	return Scope{Kind: KindSlot, SlotID: slotID}
}

// ClassScope returns the scope for a class session on the given day.
// The date is truncated to midnight UTC so every issue and redeem within
// one day resolves to the same session.
func ClassScope(department string, period int, at time.Time) Scope {
	y, m, d := at.UTC().Date()
	return Scope{
		Kind:       KindClass,
		Department: department,
		Period:     period,
		Date:       time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

// Key returns the register key for the scope. Issuing writes through this
// key with an upsert, so a reissue can never leave a window with zero
// active codes.
func (s Scope) Key() string {
	if s.Kind == KindSlot {
		return "otp:slot:" + s.SlotID
	}
	return fmt.Sprintf("otp:class:%s:%d:%s", s.Department, s.Period, s.Date.Format("2006-01-02"))
}

// Code is an issued one-time code. Read-only after creation; it is
// replaced wholesale on reissue and judged expired by comparing
// ExpiresAt against the clock, never by store eviction timing.
type Code struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"scope"`
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuerID  string    `json:"issuer_id"`
}

// Active reports whether the code is still within its validity window.
func (c Code) Active(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Errors surfaced by issue and redeem operations.
var (
	// ErrUnauthorized is returned when the requester does not own the slot.
	ErrUnauthorized = errors.New("not authorized for this slot")
	// ErrInvalidCode is returned on the slot path when the submitted code
	// does not match the current code for the slot.
	ErrInvalidCode = errors.New("invalid otp")
	// ErrCodeExpired is returned on the slot path when the code matches
	// but its validity window has passed.
	ErrCodeExpired = errors.New("otp expired")
	// ErrInvalidOrExpiredCode is returned on the class path, which does
	// not distinguish a wrong code from an expired one.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired otp")
	// ErrDepartmentMismatch is returned when a student submits a class
	// code bound to another department.
	ErrDepartmentMismatch = errors.New("otp is for a different department")
)
