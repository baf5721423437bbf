package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nekogravitycat/campsite-booking-backend/internal/guest"
	"github.com/nekogravitycat/campsite-booking-backend/internal/lock"
	"go.uber.org/zap"
)

// lockKey is the single fleet-wide lock name every instance contends on
// before mutating the campsite's availability. Multi-campsite support
// would key this (and the overlap query) by a resource id.
const lockKey = "campsite:availability"

const (
	defaultMaxStayDays = 3
	defaultLockTimeout = 5 * time.Second
)

// ReserveRequest carries a new reservation. Fields are format-validated at
// the transport boundary; the service re-checks the booking business
// rules so it stays safe to call directly.
type ReserveRequest struct {
	GuestEmail     string
	GuestFirstName string
	GuestLastName  string
	From           time.Time
	To             time.Time
}

// UpdateRequest carries a partial update. Nil fields keep the booking's
// current values.
type UpdateRequest struct {
	GuestFirstName *string
	GuestLastName  *string
	From           *time.Time
	To             *time.Time
}

type Service interface {
	// Reserve books the campsite for [req.From, req.To) and returns the new
	// booking id. It holds the availability lock across the overlap check
	// and the write.
	Reserve(ctx context.Context, req ReserveRequest) (string, error)

	GetByID(ctx context.Context, id string) (*Booking, error)

	// Update merges req with the booking's current values, re-validates the
	// effective range and persists the provided fields, all under the
	// availability lock.
	Update(ctx context.Context, id string, req UpdateRequest) error

	// Delete removes the booking and its guest. It runs without the lock:
	// deletion can only free dates, never introduce an overlap.
	Delete(ctx context.Context, id string) error

	// AvailableDays lists the free dates in [from, to). It runs without the
	// lock; results are a snapshot that reservation time re-validates.
	AvailableDays(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// Config tunes the reservation rules.
type Config struct {
	MaxStayDays int           // maximum nights per booking
	LockTimeout time.Duration // how long writers wait on the availability lock
}

type service struct {
	repo        Repository
	guests      guest.Repository
	locker      lock.Locker
	maxStayDays int
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(repo Repository, guests guest.Repository, locker lock.Locker, cfg Config, logger *zap.Logger) Service {
	if cfg.MaxStayDays <= 0 {
		cfg.MaxStayDays = defaultMaxStayDays
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	return &service{
		repo:        repo,
		guests:      guests,
		locker:      locker,
		maxStayDays: cfg.MaxStayDays,
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// validateRange applies the booking business rules to [from, to):
// from strictly after today, to strictly after from, and the stay capped
// at maxStayDays nights.
func (s *service) validateRange(from, to time.Time) error {
	today := Day(s.now())

	if !from.After(today) {
		return ErrInvalidDateFrom.WithDetail(fmt.Sprintf("from %s is not after today %s",
			from.Format(DateLayout), today.Format(DateLayout)))
	}
	if !to.After(from) {
		return ErrInvalidDateRange.WithDetail(fmt.Sprintf("from %s, to %s",
			from.Format(DateLayout), to.Format(DateLayout)))
	}
	// Reject unless from >= to - maxStayDays.
	if from.Before(to.AddDate(0, 0, -s.maxStayDays)) {
		return ErrMaxStayExceeded.WithDetail(fmt.Sprintf("from %s, to %s, max %d nights",
			from.Format(DateLayout), to.Format(DateLayout), s.maxStayDays))
	}
	return nil
}

// checkNoConflict queries for any booking overlapping [from, to),
// excluding excludeID. The from_date window is bounded to
// [from-maxStayDays, to) which is exact because every committed booking
// is itself capped at maxStayDays nights.
func (s *service) checkNoConflict(ctx context.Context, excludeID string, from, to time.Time) error {
	count, err := s.repo.CountOverlapping(ctx, excludeID, from.AddDate(0, 0, -s.maxStayDays), to, from)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("date range already in use",
			zap.String("from", from.Format(DateLayout)),
			zap.String("to", to.Format(DateLayout)))
		return ErrDateRangeUnavailable.WithDetail(fmt.Sprintf("from %s to %s",
			from.Format(DateLayout), to.Format(DateLayout)))
	}
	return nil
}

// acquireLock maps lock timeouts to the retryable contention error.
func (s *service) acquireLock(ctx context.Context) (lock.Handle, error) {
	handle, err := s.locker.Acquire(ctx, lockKey, s.lockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			s.logger.Warn("availability lock acquisition timed out",
				zap.Duration("timeout", s.lockTimeout))
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return handle, nil
}

func (s *service) Reserve(ctx context.Context, req ReserveRequest) (string, error) {
	from, to := Day(req.From), Day(req.To)

	s.logger.Debug("creating booking",
		zap.String("guest_email", req.GuestEmail),
		zap.String("from", from.Format(DateLayout)),
		zap.String("to", to.Format(DateLayout)))

	if err := s.validateRange(from, to); err != nil {
		return "", err
	}

	handle, err := s.acquireLock(ctx)
	if err != nil {
		return "", err
	}
	defer handle.Release()

	if err := s.checkNoConflict(ctx, "", from, to); err != nil {
		return "", err
	}

	// A guest row exists exactly as long as its booking, so an existing row
	// means this guest already holds a reservation.
	if _, err := s.guests.GetByEmail(ctx, req.GuestEmail); err == nil {
		return "", ErrGuestHasBooking.WithDetail(req.GuestEmail)
	} else if !errors.Is(err, guest.ErrNotFound) {
		return "", err
	}

	g := &guest.Guest{
		Email:     req.GuestEmail,
		FirstName: req.GuestFirstName,
		LastName:  req.GuestLastName,
	}
	b := &Booking{
		GuestEmail: req.GuestEmail,
		FromDate:   from,
		ToDate:     to,
	}

	id, err := s.repo.CreateWithGuest(ctx, g, b)
	if err != nil {
		return "", err
	}

	s.logger.Info("booking created", zap.String("booking_id", id))
	return id, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) error {
	s.logger.Debug("updating booking", zap.String("booking_id", id))

	handle, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Effective range: provided fields merged with the booking's current
	// values.
	from, to := b.FromDate, b.ToDate
	updateDates := false
	if req.From != nil {
		from = Day(*req.From)
		updateDates = true
	}
	if req.To != nil {
		to = Day(*req.To)
		updateDates = true
	}

	if err := s.validateRange(from, to); err != nil {
		return err
	}

	// A booking never conflicts with itself.
	if err := s.checkNoConflict(ctx, b.ID, from, to); err != nil {
		return err
	}

	updateGuest := false
	if req.GuestFirstName != nil {
		b.GuestFirstName = *req.GuestFirstName
		updateGuest = true
	}
	if req.GuestLastName != nil {
		b.GuestLastName = *req.GuestLastName
		updateGuest = true
	}

	b.FromDate, b.ToDate = from, to

	if err := s.repo.UpdateWithGuest(ctx, b, updateGuest, updateDates); err != nil {
		return err
	}

	s.logger.Info("booking updated", zap.String("booking_id", id))
	return nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	s.logger.Debug("deleting booking", zap.String("booking_id", id))

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteWithGuest(ctx, b); err != nil {
		return err
	}

	s.logger.Info("booking deleted", zap.String("booking_id", id))
	return nil
}

func (s *service) AvailableDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	from, to = Day(from), Day(to)

	dates := DatesBetween(from, to)
	if len(dates) == 0 {
		return dates, nil
	}

	// Any booking overlapping the window starts no earlier than
	// from-maxStayDays, again because stays are capped.
	bookings, err := s.repo.ListByFromDateBetween(ctx, from.AddDate(0, 0, -s.maxStayDays), to)
	if err != nil {
		return nil, err
	}

	for _, b := range bookings {
		dates = RemoveRange(dates, b.FromDate, b.ToDate)
	}
	return dates, nil
}
