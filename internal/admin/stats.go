package admin

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
)

// Stats returns platform counters for the admin dashboard.
func Stats(c echo.Context) error {
	ctx := context.Background()

	var users, offers, requests, interactions, completed, transactions int
	var circulation float64

	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE kind = 'offer'`).Scan(&offers)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE kind = 'request'`).Scan(&requests)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&interactions)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM interactions WHERE status = 'completed'`).Scan(&completed)
	_ = db.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&transactions)
	_ = db.Conn.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions`).Scan(&circulation)

	return c.JSON(http.StatusOK, echo.Map{
		"users":                  users,
		"offers":                 offers,
		"requests":               requests,
		"interactions":           interactions,
		"completed_interactions": completed,
		"transactions":           transactions,
		"hours_in_circulation":   circulation,
	})
}
