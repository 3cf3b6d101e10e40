package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/timebankhq/timebank/internal/db"
)

// Me returns the currently authenticated user's account and balance.
func Me(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var username, email, role string
	var balance float64
	err := db.Conn.QueryRow(context.Background(), `
		SELECT u.username, u.email, u.role, COALESCE(p.balance, 0)
		FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.id = $1`, userID).
		Scan(&username, &email, &role, &balance)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":       userID,
		"username": username,
		"email":    email,
		"role":     role,
		"balance":  balance,
	})
}
