package http

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookingAPI is everything the router needs from the booking service.
type BookingAPI interface {
	BookingCreator
	BookingReader
	BookingTransitioner
}

type RouterDeps struct {
	Bookings    BookingAPI
	Charges     BookingCharger
	Payments    PaymentLedger
	Logger      logrus.FieldLogger
	CORSOrigins []string
	JWTSecret   []byte
	// RateLimiter guards money-moving routes. Nil disables limiting.
	RateLimiter *RateLimiter
}

// NewRouter wires the HTTP surface. gin's mode is left to the caller.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(RequestLogger(deps.Logger), gin.Recovery())
	if origins := nonEmpty(deps.CORSOrigins); len(origins) > 0 {
		r.Use(cors.New(corsConfig(origins)))
	}
	r.NoRoute(NotFound)
	r.NoMethod(MethodNotAllowed)

	r.GET("/health", Health)

	api := r.Group("/", Authenticate(deps.JWTSecret))
	limited := deps.RateLimiter.Middleware()

	bookings := api.Group("/bookings")
	bookings.POST("", HandleCreateBooking(deps.Bookings))
	bookings.GET("/:id", HandleGetBooking(deps.Bookings))
	bookings.POST("/:id/confirm", HandleConfirmBooking(deps.Bookings))
	bookings.POST("/:id/cancel", HandleCancelBooking(deps.Bookings))
	bookings.POST("/:id/complete", HandleCompleteBooking(deps.Bookings))
	bookings.POST("/:id/charges", limited, HandleChargeBooking(deps.Charges))
	bookings.GET("/:id/payments", HandleListPayments(deps.Payments))

	payments := api.Group("/payments")
	payments.POST("", limited, HandleCreatePayment(deps.Payments))
	payments.GET("/:id", HandleGetPayment(deps.Payments))
	payments.POST("/:id/process", limited, HandleProcessPayment(deps.Payments))
	payments.POST("/:id/refunds", limited, HandleRefundPayment(deps.Payments))

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", actorHeader},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
