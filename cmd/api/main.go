package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/timebankhq/timebank/internal/admin"
	"github.com/timebankhq/timebank/internal/alerts"
	"github.com/timebankhq/timebank/internal/auth"
	"github.com/timebankhq/timebank/internal/blocks"
	"github.com/timebankhq/timebank/internal/config"
	"github.com/timebankhq/timebank/internal/db"
	"github.com/timebankhq/timebank/internal/interactions"
	"github.com/timebankhq/timebank/internal/ledger"
	"github.com/timebankhq/timebank/internal/listings"
	"github.com/timebankhq/timebank/internal/logging"
	"github.com/timebankhq/timebank/internal/messaging"
	appmw "github.com/timebankhq/timebank/internal/middleware"
	"github.com/timebankhq/timebank/internal/reviews"
	"github.com/timebankhq/timebank/internal/tags"
	"github.com/timebankhq/timebank/internal/timebank"
	"github.com/timebankhq/timebank/internal/timebank/pgstore"
	"github.com/timebankhq/timebank/internal/user"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging)

	db.Init()
	alerts.Init(cfg.Redis.Addr)
	defer alerts.Close()
	tags.Init(tags.NewClient(cfg.Tags.Timeout))
	auth.Init(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	appmw.Init(cfg.Auth.JWTSecret)

	sink := &alerts.Sink{Broadcast: messaging.Broadcast}
	engine := timebank.NewEngine(pgstore.New(db.Conn), timebank.WithSink(sink))
	interactions.Init(engine)
	messaging.Init(engine)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := db.Conn.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "error": "database unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public auth routes, rate limited against credential stuffing.
	pub := e.Group("")
	pub.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.HTTP.AuthRateLimit))))
	pub.POST("/signup", auth.Signup)
	pub.POST("/login", auth.Login)
	pub.POST("/password-reset/request", auth.RequestPasswordReset)
	pub.POST("/password-reset/confirm", auth.ResetPassword)
	pub.POST("/admin/bootstrap", auth.BootstrapAdmin)

	e.GET("/user/:id/profile", user.GetPublicProfile)
	e.GET("/user/:id/reviews", reviews.UserReviews)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWTMiddleware)

	g.GET("/me", auth.Me)
	g.PATCH("/user/profile", user.UpdateProfile)

	// Wallet
	g.GET("/wallet/balance", ledger.Balance)
	g.GET("/wallet/transactions", ledger.Transactions)

	// Listings
	g.POST("/offers", listings.CreateOffer)
	g.POST("/requests", listings.CreateRequest)
	g.GET("/offers", listings.BrowseOffers)
	g.GET("/requests", listings.BrowseRequests)
	g.GET("/listings/me", listings.MyListings)
	g.GET("/listings/:kind/:id", listings.GetListing)
	g.PATCH("/listings/:kind/:id", listings.UpdateListing)
	g.DELETE("/listings/:kind/:id", listings.DeleteListing)

	// Interactions
	g.POST("/interactions", interactions.Create)
	g.GET("/interactions", interactions.Inbox)
	g.GET("/interactions/:id", interactions.Get)
	g.POST("/interactions/:id/accept", interactions.Accept)
	g.POST("/interactions/:id/decline", interactions.Decline)
	g.POST("/interactions/:id/schedule", interactions.Schedule)
	g.POST("/interactions/:id/reject-date", interactions.RejectDate)
	g.POST("/interactions/:id/accept-date", interactions.AcceptDate)
	g.POST("/interactions/:id/complete", interactions.Complete)
	g.POST("/interactions/:id/confirm", interactions.Confirm)
	g.DELETE("/interactions/:id", interactions.DeleteConversation)

	// Conversation messages
	g.POST("/interactions/:id/messages", messaging.SendMessage)
	g.GET("/interactions/:id/messages", messaging.ListMessages)
	g.DELETE("/messages/:message_id", messaging.DeleteMessage)
	g.GET("/interactions/:id/ws", messaging.ConversationWS)

	// Reviews, blocks, tags
	g.POST("/reviews", reviews.CreateReview)
	g.POST("/blocks/:id", blocks.Block)
	g.DELETE("/blocks/:id", blocks.Unblock)
	g.GET("/blocks", blocks.List)
	g.GET("/tags/suggest", tags.Suggest)

	// Notifications
	g.GET("/notifications", alerts.ListNotifications)
	g.GET("/notifications/unread", alerts.UnreadCount)
	g.POST("/notifications/:id/read", alerts.MarkNotificationRead)
	g.POST("/notifications/read-all", alerts.MarkAllRead)

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(appmw.JWTMiddleware)
	adminGroup.Use(appmw.AdminGuard)
	adminGroup.GET("/stats", admin.Stats)
	adminGroup.GET("/users", admin.ListUsers)
	adminGroup.POST("/users/:id/suspend", admin.SuspendUser)
	adminGroup.POST("/users/:id/activate", admin.ActivateUser)
	adminGroup.GET("/transactions", admin.ListTransactions)
	adminGroup.GET("/users/:id/transactions", admin.UserTransactions)

	go func() {
		logger.Info("api listening", "port", cfg.HTTP.Port)
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
