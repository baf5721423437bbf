package guest

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/campsite-booking-backend/internal/pkg/apperror"
)

var ErrNotFound = apperror.New(http.StatusNotFound, "guest not found")

// Guest is the person owning a booking. A guest row exists exactly as long
// as its booking does: one email maps to at most one active booking.
type Guest struct {
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
