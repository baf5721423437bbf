package booking

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/campsite-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound             = apperror.New(http.StatusNotFound, "booking not found")
	ErrDateRangeUnavailable = apperror.New(http.StatusConflict, "date range is already booked")
	ErrGuestHasBooking      = apperror.New(http.StatusConflict, "guest already has an active booking")
	ErrInvalidDateFrom      = apperror.New(http.StatusBadRequest, "date from must be later than today")
	ErrInvalidDateRange     = apperror.New(http.StatusBadRequest, "date from must be before date to")
	ErrMaxStayExceeded      = apperror.New(http.StatusBadRequest, "stay exceeds the maximum allowed nights")
	ErrLockTimeout          = apperror.New(http.StatusServiceUnavailable, "campsite is busy, please retry")
)

// Booking reserves the campsite for the half-open date span
// [FromDate, ToDate). Guest fields are joined from the owning guest row.
type Booking struct {
	ID             string
	GuestEmail     string
	GuestFirstName string
	GuestLastName  string
	FromDate       time.Time
	ToDate         time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
