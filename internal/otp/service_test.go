package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRegister is an in-memory Register with the same upsert semantics
// as the Redis implementation.
type fakeRegister struct {
	mu    sync.Mutex
	cells map[string]Code
}

func newFakeRegister() *fakeRegister {
	return &fakeRegister{cells: make(map[string]Code)}
}

func (f *fakeRegister) Put(_ context.Context, code Code) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[code.Scope.Key()] = code
	return nil
}

func (f *fakeRegister) Get(_ context.Context, scope Scope) (Code, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.cells[scope.Key()]
	return code, ok, nil
}

func (f *fakeRegister) FindClassByValue(_ context.Context, value string) (Code, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range f.cells {
		if code.Scope.Kind == KindClass && code.Value == value {
			return code, true, nil
		}
	}
	return Code{}, false, nil
}

func (f *fakeRegister) FindByIssuer(_ context.Context, issuerID string) (Code, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest Code
	var found bool
	for _, code := range f.cells {
		if code.IssuerID == issuerID && (!found || code.IssuedAt.After(latest.IssuedAt)) {
			latest, found = code, true
		}
	}
	return latest, found, nil
}

type fakeSlots struct {
	owners map[string]string
}

var errSlotMissing = errors.New("slot not found")

func (f *fakeSlots) SlotOwner(_ context.Context, slotID string) (string, error) {
	owner, ok := f.owners[slotID]
	if !ok {
		return "", errSlotMissing
	}
	return owner, nil
}

type fakeBookings struct {
	mu      sync.Mutex
	present map[string]bool // slotID/studentID
	booked  map[string]bool
}

var errNoBooking = errors.New("booking not found")

func newFakeBookings() *fakeBookings {
	return &fakeBookings{present: make(map[string]bool), booked: make(map[string]bool)}
}

func (f *fakeBookings) MarkPresent(_ context.Context, slotID, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotID + "/" + studentID
	if !f.booked[key] {
		return errNoBooking
	}
	f.present[key] = true
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	codes    map[string]string // date|period|department -> code
	present  map[string]map[string]bool
	upserted int
}

var (
	errNoSession     = errors.New("session not found")
	errAlreadyMarked = errors.New("already marked")
)

func newFakeSessions() *fakeSessions {
	return &fakeSessions{codes: make(map[string]string), present: make(map[string]map[string]bool)}
}

func sessionKey(date time.Time, period int, department string) string {
	return fmt.Sprintf("%s|%d|%s", date.Format("2006-01-02"), period, department)
}

func (f *fakeSessions) UpsertSessionCode(_ context.Context, date time.Time, period int, department, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(date, period, department)
	f.codes[key] = code
	if f.present[key] == nil {
		f.present[key] = make(map[string]bool)
	}
	f.upserted++
	return nil
}

func (f *fakeSessions) MarkSessionPresent(_ context.Context, date time.Time, period int, department, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(date, period, department)
	set, ok := f.present[key]
	if !ok {
		return errNoSession
	}
	if set[studentID] {
		return errAlreadyMarked
	}
	set[studentID] = true
	return nil
}

type fixture struct {
	svc      *Service
	register *fakeRegister
	slots    *fakeSlots
	bookings *fakeBookings
	sessions *fakeSessions
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		register: newFakeRegister(),
		slots:    &fakeSlots{owners: map[string]string{"slot-1": "fac-1"}},
		bookings: newFakeBookings(),
		sessions: newFakeSessions(),
		clock:    time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.register, f.slots, f.bookings, f.sessions, 15*time.Second, 20*time.Second)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestIssueForSlotOwnershipCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-2"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("issue by non-owner: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.IssueForSlot(ctx, "slot-9", "fac-1"); !errors.Is(err, errSlotMissing) {
		t.Errorf("issue for missing slot: got %v, want slot lookup error", err)
	}
}

func TestIssueForSlotCodeShape(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, err := f.svc.IssueForSlot(context.Background(), "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("IssueForSlot: %v", err)
	}
	if len(code.Value) != 6 {
		t.Errorf("slot code width: got %d digits (%q), want 6", len(code.Value), code.Value)
	}
	if want := f.clock.Add(15 * time.Second); !code.ExpiresAt.Equal(want) {
		t.Errorf("slot code expiry: got %v, want %v", code.ExpiresAt, want)
	}
}

func TestIssueForClassCodeShape(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, err := f.svc.IssueForClass(context.Background(), "CSE", 2, "fac-1")
	if err != nil {
		t.Fatalf("IssueForClass: %v", err)
	}
	if len(code.Value) != 4 {
		t.Errorf("class code width: got %d digits (%q), want 4", len(code.Value), code.Value)
	}
	if want := f.clock.Add(20 * time.Second); !code.ExpiresAt.Equal(want) {
		t.Errorf("class code expiry: got %v, want %v", code.ExpiresAt, want)
	}
	if f.sessions.upserted != 1 {
		t.Errorf("session upserts: got %d, want 1", f.sessions.upserted)
	}
	if got := code.Scope.Date; got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Errorf("class scope date not truncated to midnight: %v", got)
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bookings.booked["slot-1/stu-1"] = true

	first, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if first.Value == second.Value {
		t.Skip("generator produced the same value twice; nothing to distinguish")
	}

	if err := f.svc.RedeemForSlot(ctx, "slot-1", first.Value, "stu-1"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("redeem of replaced code: got %v, want ErrInvalidCode", err)
	}
	if err := f.svc.RedeemForSlot(ctx, "slot-1", second.Value, "stu-1"); err != nil {
		t.Errorf("redeem of current code: %v", err)
	}
}

func TestRedeemForSlotErrorGranularity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bookings.booked["slot-1/stu-1"] = true

	code, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// A wrong value is invalid regardless of anything else.
	if err := f.svc.RedeemForSlot(ctx, "slot-1", "000000", "stu-1"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("wrong value: got %v, want ErrInvalidCode", err)
	}

	// The right value past the window is expired, not invalid.
	f.advance(16 * time.Second)
	if err := f.svc.RedeemForSlot(ctx, "slot-1", code.Value, "stu-1"); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("expired value: got %v, want ErrCodeExpired", err)
	}
}

func TestRedeemForSlotRequiresBooking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.svc.RedeemForSlot(ctx, "slot-1", code.Value, "stu-9"); !errors.Is(err, errNoBooking) {
		t.Errorf("redeem without booking: got %v, want booking-not-found", err)
	}
}

func TestRedeemForSlotIsRepeatable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.bookings.booked["slot-1/stu-1"] = true

	code, err := f.svc.IssueForSlot(ctx, "slot-1", "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.svc.RedeemForSlot(ctx, "slot-1", code.Value, "stu-1"); err != nil {
			t.Fatalf("redeem %d: %v", i+1, err)
		}
	}
	if !f.bookings.present["slot-1/stu-1"] {
		t.Error("booking not marked present")
	}
}

// TestRedeemForClassWindow walks the timeline from the class scenario:
// a code issued at 10:00:00 with a 20 second window succeeds at
// 10:00:10, reports AlreadyMarked on a second submit at 10:00:12, and
// reports the combined invalid-or-expired error at 10:00:25.
func TestRedeemForClassWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.svc.IssueForClass(ctx, "CSE", 2, "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.advance(10 * time.Second)
	if err := f.svc.RedeemForClass(ctx, code.Value, "stu-1", "CSE"); err != nil {
		t.Fatalf("redeem at +10s: %v", err)
	}

	f.advance(2 * time.Second)
	if err := f.svc.RedeemForClass(ctx, code.Value, "stu-1", "CSE"); !errors.Is(err, errAlreadyMarked) {
		t.Errorf("second redeem at +12s: got %v, want already-marked", err)
	}

	f.advance(13 * time.Second)
	if err := f.svc.RedeemForClass(ctx, code.Value, "stu-2", "CSE"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("redeem at +25s: got %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestRedeemForClassDoesNotDistinguishUnknownFromExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.RedeemForClass(ctx, "9999", "stu-1", "CSE"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("unknown code: got %v, want ErrInvalidOrExpiredCode", err)
	}

	code, err := f.svc.IssueForClass(ctx, "CSE", 2, "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.advance(21 * time.Second)
	if err := f.svc.RedeemForClass(ctx, code.Value, "stu-1", "CSE"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("expired code: got %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestRedeemForClassDepartmentCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.svc.IssueForClass(ctx, "CSE", 2, "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.svc.RedeemForClass(ctx, code.Value, "stu-1", "ECE"); !errors.Is(err, ErrDepartmentMismatch) {
		t.Errorf("cross-department redeem: got %v, want ErrDepartmentMismatch", err)
	}
}

func TestActiveForIssuer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, ok, err := f.svc.ActiveForIssuer(ctx, "fac-1"); err != nil || ok {
		t.Fatalf("no code issued: got ok=%v err=%v", ok, err)
	}

	code, err := f.svc.IssueForClass(ctx, "CSE", 1, "fac-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, ok, err := f.svc.ActiveForIssuer(ctx, "fac-1")
	if err != nil || !ok {
		t.Fatalf("live code: got ok=%v err=%v", ok, err)
	}
	if got.Value != code.Value {
		t.Errorf("active code: got %q, want %q", got.Value, code.Value)
	}

	f.advance(21 * time.Second)
	if _, ok, _ := f.svc.ActiveForIssuer(ctx, "fac-1"); ok {
		t.Error("expired code still reported active")
	}
}

func TestScopeKeys(t *testing.T) {
	t.Parallel()
	if got, want := SlotScope("abc").Key(), "otp:slot:abc"; got != want {
		t.Errorf("slot key: got %q, want %q", got, want)
	}
	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	if got, want := ClassScope("CSE", 2, at).Key(), "otp:class:CSE:2:2025-03-10"; got != want {
		t.Errorf("class key: got %q, want %q", got, want)
	}
	// Two instants on the same day map to the same scope.
	later := at.Add(3 * time.Hour)
	if ClassScope("CSE", 2, at).Key() != ClassScope("CSE", 2, later).Key() {
		t.Error("same-day class scopes differ")
	}
}
