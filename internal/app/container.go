package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nekogravitycat/campsite-booking-backend/internal/api"
	"github.com/nekogravitycat/campsite-booking-backend/internal/booking"
	"github.com/nekogravitycat/campsite-booking-backend/internal/guest"
	"github.com/nekogravitycat/campsite-booking-backend/internal/lock"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	Logger       *zap.Logger
	MaxStayDays  int
	LockTimeout  time.Duration
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	BookingService booking.Service
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	// The availability lock lives in the same Postgres the store does, so
	// every replica contends on the same key.
	locker := lock.NewAdvisoryLocker(cfg.DBPool)

	// Guest Module
	guestRepo := guest.NewPgxRepository(cfg.DBPool)

	// Booking Module
	bookingRepo := booking.NewPgxRepository(cfg.DBPool)
	bookingService := booking.NewService(bookingRepo, guestRepo, locker, booking.Config{
		MaxStayDays: cfg.MaxStayDays,
		LockTimeout: cfg.LockTimeout,
	}, cfg.Logger)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		BookingService: bookingService,
	})

	return &Container{
		Router:         router,
		BookingService: bookingService,
	}
}
