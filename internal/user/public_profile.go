package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
)

// GetPublicProfile returns a member's public card: username, bio, member
// since, and their review summary. Balance is private and never shown here.
func GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}

	ctx := context.Background()
	var (
		id        string
		username  string
		bio       string
		isActive  bool
		createdAt time.Time
	)
	err := db.Conn.QueryRow(ctx,
		`SELECT u.id::text, u.username, COALESCE(p.bio, ''), u.is_active, u.created_at
		 FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		 WHERE u.id = $1`, userID,
	).Scan(&id, &username, &bio, &isActive, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch profile"})
	}
	if !isActive {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	var reviewCount int
	var avgRating float64
	if err := db.Conn.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(rating)::float, 0) FROM reviews WHERE target_id = $1`, userID,
	).Scan(&reviewCount, &avgRating); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch profile"})
	}

	var completed int
	if err := db.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM interactions
		 WHERE status = 'completed' AND (sender_id = $1 OR receiver_id = $1)`, userID,
	).Scan(&completed); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch profile"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":                  id,
		"username":            username,
		"bio":                 bio,
		"member_since":        createdAt.UTC().Format(time.RFC3339),
		"completed_exchanges": completed,
		"review_summary": echo.Map{
			"count":          reviewCount,
			"average_rating": avgRating,
		},
	})
}
