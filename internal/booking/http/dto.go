package http

import (
	"time"

	"github.com/nekogravitycat/campsite-booking-backend/internal/booking"
)

type ReserveBookingRequest struct {
	GuestEmail     string `json:"guest_email" binding:"required,email"`
	GuestFirstName string `json:"guest_first_name" binding:"required,min=1,max=45"`
	GuestLastName  string `json:"guest_last_name" binding:"required,min=1,max=45"`
	From           string `json:"from" binding:"required,datetime=2006-01-02"`
	To             string `json:"to" binding:"required,datetime=2006-01-02"`
}

type UpdateBookingRequest struct {
	GuestFirstName *string `json:"guest_first_name" binding:"omitempty,min=1,max=45"`
	GuestLastName  *string `json:"guest_last_name" binding:"omitempty,min=1,max=45"`
	From           *string `json:"from" binding:"omitempty,datetime=2006-01-02"`
	To             *string `json:"to" binding:"omitempty,datetime=2006-01-02"`
}

// AvailabilityRequest defines query parameters for the free-dates lookup.
type AvailabilityRequest struct {
	From time.Time `form:"from" time_format:"2006-01-02" binding:"required"`
	To   time.Time `form:"to" time_format:"2006-01-02" binding:"required"`
}

type ReserveBookingResponse struct {
	ID string `json:"id"`
}

type BookingResponse struct {
	ID             string    `json:"id"`
	GuestEmail     string    `json:"guest_email"`
	GuestFirstName string    `json:"guest_first_name"`
	GuestLastName  string    `json:"guest_last_name"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID,
		GuestEmail:     b.GuestEmail,
		GuestFirstName: b.GuestFirstName,
		GuestLastName:  b.GuestLastName,
		From:           b.FromDate.Format(booking.DateLayout),
		To:             b.ToDate.Format(booking.DateLayout),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type AvailabilityResponse struct {
	AvailableDates []string `json:"available_dates"`
}

func NewAvailabilityResponse(dates []time.Time) AvailabilityResponse {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(booking.DateLayout)
	}
	return AvailabilityResponse{AvailableDates: out}
}
