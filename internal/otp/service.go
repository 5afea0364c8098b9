package otp

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Digit widths are deliberately different per scope: slot codes are read
// off a screen in a small lab, class codes are dictated to a full room.
const (
	slotCodeMin, slotCodeSpan   = 100000, 900000 // 6 digits
	classCodeMin, classCodeSpan = 1000, 9000     // 4 digits
)

// Register is the keyed single-cell store holding the current code per
// scope. Put must be an upsert; any TTL the backing store applies is
// space reclamation only and never consulted for expiry decisions.
type Register interface {
	Put(ctx context.Context, code Code) error
	Get(ctx context.Context, scope Scope) (Code, bool, error)
	// FindClassByValue resolves a class code by its submitted value.
	FindClassByValue(ctx context.Context, value string) (Code, bool, error)
	// FindByIssuer returns the code most recently issued by a faculty member.
	FindByIssuer(ctx context.Context, issuerID string) (Code, bool, error)
}

// SlotDirectory exposes the slot fields the issuer needs for its
// ownership check.
type SlotDirectory interface {
	SlotOwner(ctx context.Context, slotID string) (ownerID string, err error)
}

// BookingLedger applies the attendance side effect of a slot redemption.
type BookingLedger interface {
	MarkPresent(ctx context.Context, slotID, studentID string) error
}

// SessionLedger maintains per-day class attendance sessions.
type SessionLedger interface {
	UpsertSessionCode(ctx context.Context, date time.Time, period int, department, code, facultyID string) error
	MarkSessionPresent(ctx context.Context, date time.Time, period int, department, studentID string) error
}

// Service issues and redeems one-time codes.
type Service struct {
	register Register
	slots    SlotDirectory
	bookings BookingLedger
	sessions SessionLedger

	slotTTL  time.Duration
	classTTL time.Duration
	now      func() time.Time
}

// NewService creates an OTP service. slotTTL and classTTL default to the
// production windows (15s and 20s) when non-positive.
func NewService(register Register, slots SlotDirectory, bookings BookingLedger, sessions SessionLedger, slotTTL, classTTL time.Duration) *Service {
	if slotTTL <= 0 {
		slotTTL = 15 * time.Second
	}
	if classTTL <= 0 {
		classTTL = 20 * time.Second
	}
	return &Service{
		register: register,
		slots:    slots,
		bookings: bookings,
		sessions: sessions,
		slotTTL:  slotTTL,
		classTTL: classTTL,
		now:      time.Now,
	}
}

// IssueForSlot generates a fresh 6-digit code for a slot, replacing any
// previously active code for the same slot. Only the slot owner may issue.
func (s *Service) IssueForSlot(ctx context.Context, slotID, requesterID string) (Code, error) {
	ownerID, err := s.slots.SlotOwner(ctx, slotID)
	if err != nil {
		return Code{}, err
	}
	if ownerID != requesterID {
		return Code{}, ErrUnauthorized
	}

	value, err := randomDigits(slotCodeMin, slotCodeSpan)
	if err != nil {
		return Code{}, err
	}
	now := s.now().UTC()
	code := Code{
		ID:        uuid.NewString(),
		Scope:     SlotScope(slotID),
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.slotTTL),
		IssuerID:  requesterID,
	}
	if err := s.register.Put(ctx, code); err != nil {
		return Code{}, err
	}
	return code, nil
}

// IssueForClass generates a fresh 4-digit code for a (department, period)
// class session today. Any faculty member may issue; the session row is
// created eagerly so students always have something to be marked into.
func (s *Service) IssueForClass(ctx context.Context, department string, period int, requesterID string) (Code, error) {
	value, err := randomDigits(classCodeMin, classCodeSpan)
	if err != nil {
		return Code{}, err
	}
	now := s.now().UTC()
	scope := ClassScope(department, period, now)
	code := Code{
		ID:        uuid.NewString(),
		Scope:     scope,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.classTTL),
		IssuerID:  requesterID,
	}
	if err := s.register.Put(ctx, code); err != nil {
		return Code{}, err
	}
	if err := s.sessions.UpsertSessionCode(ctx, scope.Date, period, department, value, requesterID); err != nil {
		return Code{}, err
	}
	return code, nil
}

// RedeemForSlot marks the student present on their booking for the slot.
// A wrong or stale code value fails with ErrInvalidCode; a matching code
// past its window fails with ErrCodeExpired. Re-submitting a still-valid
// code repeats the same field write and is harmless.
func (s *Service) RedeemForSlot(ctx context.Context, slotID, submitted, studentID string) error {
	code, ok, err := s.register.Get(ctx, SlotScope(slotID))
	if err != nil {
		return err
	}
	if !ok || code.Value != submitted {
		return ErrInvalidCode
	}
	if !code.Active(s.now()) {
		return ErrCodeExpired
	}
	return s.bookings.MarkPresent(ctx, slotID, studentID)
}

// RedeemForClass marks the student present in today's session for the
// code's department and period. Unlike the slot path this one reports a
// single ErrInvalidOrExpiredCode for both unknown and stale codes.
func (s *Service) RedeemForClass(ctx context.Context, submitted, studentID, studentDepartment string) error {
	code, ok, err := s.register.FindClassByValue(ctx, submitted)
	if err != nil {
		return err
	}
	if !ok || !code.Active(s.now()) {
		return ErrInvalidOrExpiredCode
	}
	if code.Scope.Department != studentDepartment {
		return ErrDepartmentMismatch
	}
	return s.sessions.MarkSessionPresent(ctx, code.Scope.Date, code.Scope.Period, code.Scope.Department, studentID)
}

// ActiveForIssuer returns the faculty member's current unexpired code,
// or ok=false when none is live. Used by the faculty UI poll.
func (s *Service) ActiveForIssuer(ctx context.Context, issuerID string) (Code, bool, error) {
	code, ok, err := s.register.FindByIssuer(ctx, issuerID)
	if err != nil || !ok {
		return Code{}, false, err
	}
	if !code.Active(s.now()) {
		return Code{}, false, nil
	}
	return code, true, nil
}

// randomDigits returns a fixed-width numeric string in [min, min+span).
func randomDigits(min, span int64) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(min+n.Int64(), 10), nil
}
