package user

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
	"github.com/timebankhq/timebank/internal/timebank"
)

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// UpdateProfile edits the caller's own profile.
func UpdateProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	req := new(UpdateProfileRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := context.Background()

	if username := strings.TrimSpace(req.Username); username != "" {
		var taken bool
		if err := db.Conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`, username, userID,
		).Scan(&taken); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
		}
		if taken {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		if _, err := db.Conn.Exec(ctx,
			`UPDATE users SET username = $1 WHERE id = $2`, username, userID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
		}
	}

	// Upsert keeps the lazy profile creation consistent with the ledger.
	if _, err := db.Conn.Exec(ctx,
		`INSERT INTO profiles (user_id, balance, bio) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET bio = COALESCE(NULLIF($3, ''), profiles.bio)`,
		userID, timebank.InitialBalance, req.Bio); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated successfully"})
}
