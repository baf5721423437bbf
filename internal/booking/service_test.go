package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekogravitycat/campsite-booking-backend/internal/guest"
	"github.com/nekogravitycat/campsite-booking-backend/internal/lock"
)

// memStore implements Repository and guest lookups on maps, mirroring the
// transactional semantics of the pgx repository.
type memStore struct {
	mu       sync.Mutex
	guests   map[string]*guest.Guest
	bookings map[string]*Booking
}

func newMemStore() *memStore {
	return &memStore{
		guests:   make(map[string]*guest.Guest),
		bookings: make(map[string]*Booking),
	}
}

func (s *memStore) CreateWithGuest(ctx context.Context, g *guest.Guest, b *Booking) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	gc := *g
	gc.CreatedAt, gc.UpdatedAt = now, now
	s.guests[g.Email] = &gc

	bc := *b
	bc.ID = uuid.NewString()
	bc.GuestFirstName, bc.GuestLastName = g.FirstName, g.LastName
	bc.CreatedAt, bc.UpdatedAt = now, now
	s.bookings[bc.ID] = &bc

	return bc.ID, nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	bc := *b
	if g, ok := s.guests[b.GuestEmail]; ok {
		bc.GuestFirstName, bc.GuestLastName = g.FirstName, g.LastName
	}
	return &bc, nil
}

func (s *memStore) UpdateWithGuest(ctx context.Context, b *Booking, updateGuest, updateDates bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if updateGuest {
		g, ok := s.guests[b.GuestEmail]
		if !ok {
			return guest.ErrNotFound
		}
		g.FirstName, g.LastName = b.GuestFirstName, b.GuestLastName
		g.UpdatedAt = time.Now()
	}
	if updateDates {
		cur.FromDate, cur.ToDate = b.FromDate, b.ToDate
		cur.UpdatedAt = time.Now()
	}
	return nil
}

func (s *memStore) DeleteWithGuest(ctx context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	delete(s.bookings, b.ID)
	delete(s.guests, b.GuestEmail)
	return nil
}

func (s *memStore) CountOverlapping(ctx context.Context, excludeID string, fromWindowStart, fromWindowEnd, toLowerBound time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, b := range s.bookings {
		if id == excludeID {
			continue
		}
		if !b.FromDate.Before(fromWindowStart) && b.FromDate.Before(fromWindowEnd) && b.ToDate.After(toLowerBound) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) ListByFromDateBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Booking
	for _, b := range s.bookings {
		if !b.FromDate.Before(windowStart) && !b.FromDate.After(windowEnd) {
			bc := *b
			out = append(out, &bc)
		}
	}
	return out, nil
}

type memGuestRepo struct {
	store *memStore
}

func (r *memGuestRepo) GetByEmail(ctx context.Context, email string) (*guest.Guest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	g, ok := r.store.guests[email]
	if !ok {
		return nil, guest.ErrNotFound
	}
	gc := *g
	return &gc, nil
}

// Fixed clock for every test: "today" is 2024-01-10.
var testToday = date("2024-01-10")

func newTestService(t *testing.T, cfg Config) (Service, *memStore, lock.Locker) {
	t.Helper()

	store := newMemStore()
	locker := lock.NewMemoryLocker()
	svc := NewService(store, &memGuestRepo{store: store}, locker, cfg, zap.NewNop())
	svc.(*service).now = func() time.Time { return testToday }
	return svc, store, locker
}

func reserveReq(email, from, to string) ReserveRequest {
	return ReserveRequest{
		GuestEmail:     email,
		GuestFirstName: "John",
		GuestLastName:  "Doe",
		From:           date(from),
		To:             date(to),
	}
}

func TestReserveAndAvailability(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	// Reserve 2024-01-11 .. 2024-01-13 for a@x.com.
	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Overlap on 2024-01-12 must be rejected.
	_, err = svc.Reserve(ctx, reserveReq("b@x.com", "2024-01-12", "2024-01-14"))
	assert.ErrorIs(t, err, ErrDateRangeUnavailable)

	// Only the unbooked dates remain.
	dates, err := svc.AvailableDays(ctx, date("2024-01-11"), date("2024-01-15"))
	require.NoError(t, err)

	got := make([]string, len(dates))
	for i, d := range dates {
		got[i] = d.Format(DateLayout)
	}
	assert.Equal(t, []string{"2024-01-13", "2024-01-14"}, got)
}

func TestReserveValidation(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{"from equal to today", "2024-01-10", "2024-01-12", ErrInvalidDateFrom},
		{"from before today", "2024-01-09", "2024-01-12", ErrInvalidDateFrom},
		{"to equal to from", "2024-01-11", "2024-01-11", ErrInvalidDateRange},
		{"to before from", "2024-01-13", "2024-01-11", ErrInvalidDateRange},
		{"four nights when max is three", "2024-01-11", "2024-01-15", ErrMaxStayExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t, Config{})

			_, err := svc.Reserve(context.Background(), reserveReq("a@x.com", tt.from, tt.to))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.bookings, "rejected reservation must not write")
		})
	}
}

func TestReserveMaxStayBoundary(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	// Exactly three nights is allowed with the default policy.
	_, err := svc.Reserve(context.Background(), reserveReq("a@x.com", "2024-01-11", "2024-01-14"))
	assert.NoError(t, err)
}

func TestReserveGuestAlreadyHasBooking(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-12"))
	require.NoError(t, err)

	// Same guest, non-overlapping range: still one booking per guest.
	_, err = svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-20", "2024-01-21"))
	assert.ErrorIs(t, err, ErrGuestHasBooking)
}

func TestReserveAdjacentRangesDoNotConflict(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	// [13,15) touches [11,13) only at the checkout date: no shared night.
	_, err = svc.Reserve(ctx, reserveReq("b@x.com", "2024-01-13", "2024-01-15"))
	assert.NoError(t, err)
}

func TestUpdateOwnRangeIsNotAConflict(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	// Shift by one day into a range only this booking occupies.
	from, to := date("2024-01-12"), date("2024-01-14")
	err = svc.Update(ctx, id, UpdateRequest{From: &from, To: &to})
	require.NoError(t, err)

	b, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-12", b.FromDate.Format(DateLayout))
	assert.Equal(t, "2024-01-14", b.ToDate.Format(DateLayout))
}

func TestUpdateConflictsWithOtherBooking(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("b@x.com", "2024-01-14", "2024-01-16"))
	require.NoError(t, err)

	// Moving a's booking onto b's nights must fail.
	from, to := date("2024-01-14"), date("2024-01-15")
	err = svc.Update(ctx, id, UpdateRequest{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrDateRangeUnavailable)

	// a's booking is untouched.
	b, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", b.FromDate.Format(DateLayout))
}

func TestUpdateMergesUnsetFields(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	// Only To provided: From keeps its current value and the effective
	// range [2024-01-11, 2024-01-14) is validated as a whole.
	to := date("2024-01-14")
	err = svc.Update(ctx, id, UpdateRequest{To: &to})
	require.NoError(t, err)

	b, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", b.FromDate.Format(DateLayout))
	assert.Equal(t, "2024-01-14", b.ToDate.Format(DateLayout))

	// Extending further would exceed the three-night cap.
	to = date("2024-01-15")
	err = svc.Update(ctx, id, UpdateRequest{To: &to})
	assert.ErrorIs(t, err, ErrMaxStayExceeded)
}

func TestUpdateGuestNamesOnly(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	first, last := "Jane", "Smith"
	err = svc.Update(ctx, id, UpdateRequest{GuestFirstName: &first, GuestLastName: &last})
	require.NoError(t, err)

	b, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane", b.GuestFirstName)
	assert.Equal(t, "Smith", b.GuestLastName)
	assert.Equal(t, "2024-01-11", b.FromDate.Format(DateLayout))
}

func TestUpdateNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	from := date("2024-01-11")
	err := svc.Update(context.Background(), uuid.NewString(), UpdateRequest{From: &from})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFreesRangeAndGuest(t *testing.T) {
	svc, store, _ := newTestService(t, Config{})
	ctx := context.Background()

	id, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, id))
	assert.Empty(t, store.bookings)
	assert.Empty(t, store.guests, "guest row is destroyed with its booking")

	// The identical range is bookable again, by the same guest.
	_, err = svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	assert.NoError(t, err)
}

func TestDeleteNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	err := svc.Delete(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableDaysEmptyWindow(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	dates, err := svc.AvailableDays(context.Background(), date("2024-01-15"), date("2024-01-11"))
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestLockTimeoutPerformsNoWrites(t *testing.T) {
	svc, store, locker := newTestService(t, Config{LockTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	// Another holder wedges the availability lock.
	handle, err := locker.Acquire(ctx, lockKey, time.Second)
	require.NoError(t, err)
	defer handle.Release()

	_, err = svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Empty(t, store.bookings)
	assert.Empty(t, store.guests)
}

func TestLockReleasedAfterFailure(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Reserve(ctx, reserveReq("a@x.com", "2024-01-11", "2024-01-13"))
	require.NoError(t, err)

	// A conflicting reserve fails under the lock...
	_, err = svc.Reserve(ctx, reserveReq("b@x.com", "2024-01-12", "2024-01-14"))
	require.ErrorIs(t, err, ErrDateRangeUnavailable)

	// ...and the lock must still be free for the next writer.
	_, err = svc.Reserve(ctx, reserveReq("b@x.com", "2024-01-13", "2024-01-15"))
	assert.NoError(t, err)
}

func TestConcurrentOverlappingReservesExactlyOneWins(t *testing.T) {
	svc, store, _ := newTestService(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	reqs := []ReserveRequest{
		reserveReq("a@x.com", "2024-01-11", "2024-01-13"),
		reserveReq("b@x.com", "2024-01-12", "2024-01-14"),
	}

	for i := range reqs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, reqs[i])
		}()
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrDateRangeUnavailable)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of two overlapping reserves must fail")
	assert.Len(t, store.bookings, 1)
}

func TestConcurrentDisjointReservesBothWin(t *testing.T) {
	svc, store, _ := newTestService(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	reqs := []ReserveRequest{
		reserveReq("a@x.com", "2024-01-11", "2024-01-13"),
		reserveReq("b@x.com", "2024-01-20", "2024-01-22"),
	}

	for i := range reqs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, reqs[i])
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, store.bookings, 2)

	// Both ranges show as booked afterwards.
	dates, err := svc.AvailableDays(ctx, date("2024-01-11"), date("2024-01-22"))
	require.NoError(t, err)
	for _, d := range dates {
		s := d.Format(DateLayout)
		assert.NotContains(t, []string{"2024-01-11", "2024-01-12", "2024-01-20", "2024-01-21"}, s)
	}
}
