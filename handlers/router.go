package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ticketchain-backend/logging"
	"ticketchain-backend/services"
)

// Deps is everything the router wires into handlers. Chain, Metrics and
// CheckInLimiter are optional.
type Deps struct {
	Registry *services.Registry
	Ledger   *services.CreditLedger
	CheckIn  *services.CheckInEngine
	Feedback *services.FeedbackService

	Chain          ChainReader
	Metrics        http.Handler
	CheckInLimiter *RateLimiter

	AllowedOrigins []string
	Production     bool
	Log            logging.Logger
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log.With("component", "http")

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))

	userHandler := NewUserHandler(d.Registry, d.Ledger, log)
	eventHandler := NewEventHandler(d.Registry, log)
	checkinHandler := NewCheckinHandler(d.CheckIn, log)
	feedbackHandler := NewFeedbackHandler(d.Feedback, log)
	blockchainHandler := NewBlockchainHandler(d.Chain, log)
	devHandler := NewDevHandler(d.Registry, d.Production, log)

	checkinChain := []gin.HandlerFunc{checkinHandler.CheckIn}
	if d.CheckInLimiter != nil {
		checkinChain = append([]gin.HandlerFunc{d.CheckInLimiter.Middleware()}, checkinChain...)
	}

	api := router.Group("/api/v1")
	{
		// User routes; :ref is a user id or wallet address
		api.POST("/users", userHandler.CreateUser)
		api.GET("/users/:ref", userHandler.GetUser)
		api.GET("/users/:ref/credits", userHandler.GetCredits)
		api.PUT("/users/:ref/credits", userHandler.UpdateCredits)
		api.GET("/users/:ref/credits/audit", userHandler.AuditCredits)
		api.POST("/users/:ref/credits/reconcile", userHandler.ReconcileCredits)
		api.GET("/users/:ref/events/organizing", userHandler.GetOrganizingEvents)
		api.GET("/users/:ref/events/attending", userHandler.GetAttendingEvents)

		// Event routes
		api.POST("/events", eventHandler.CreateEvent)
		api.GET("/events", eventHandler.GetEvents)
		api.GET("/events/:id", eventHandler.GetEvent)

		// Participation routes
		api.POST("/events/:id/register", eventHandler.RegisterUser)
		api.GET("/events/:id/participants", eventHandler.GetParticipants)
		api.GET("/events/:id/participants/pending", eventHandler.GetPendingParticipants)
		api.PUT("/events/:id/participants/:ref/status", eventHandler.UpdateParticipantStatus)
		api.GET("/events/:id/participants/:ref/ticket", eventHandler.GetTicket)

		// Checkin and feedback routes
		api.POST("/events/:id/checkin", checkinChain...)
		api.GET("/events/:id/feedback", feedbackHandler.GetEventFeedback)
		api.POST("/feedback", feedbackHandler.SubmitFeedback)

		// Blockchain routes
		api.GET("/blockchain/status", blockchainHandler.Status)
		api.GET("/blockchain/users/:wallet/score", blockchainHandler.GetCreditScore)
		api.GET("/blockchain/events/:chainId", blockchainHandler.GetEvent)

		api.POST("/dev/sample-data", devHandler.SeedSampleData)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	return router
}
