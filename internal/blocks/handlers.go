package blocks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
)

// BlockedUser is the JSON shape of one block entry.
type BlockedUser struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Block hides another member from the caller, and the caller from them.
// Blocking is idempotent.
func Block(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	targetID := c.Param("id")
	if _, err := uuid.Parse(targetID); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id format"})
	}
	if targetID == uid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot block yourself"})
	}

	ctx := context.Background()
	var exists string
	if err := db.Conn.QueryRow(ctx, `SELECT id::text FROM users WHERE id = $1`, targetID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check user"})
	}

	_, err := db.Conn.Exec(ctx,
		`INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2)
		 ON CONFLICT (blocker_id, blocked_id) DO NOTHING`, uid, targetID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not block user"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user blocked"})
}

// Unblock removes a block the caller placed.
func Unblock(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	targetID := c.Param("id")

	res, err := db.Conn.Exec(context.Background(),
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, uid, targetID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not unblock user"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no block found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user unblocked"})
}

// List returns the members the caller has blocked.
func List(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT b.blocked_id::text, u.username, b.created_at
		 FROM blocks b JOIN users u ON u.id = b.blocked_id
		 WHERE b.blocker_id = $1 ORDER BY b.created_at DESC`, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch blocked users"})
	}
	defer rows.Close()

	items := []BlockedUser{}
	for rows.Next() {
		var b BlockedUser
		if err := rows.Scan(&b.UserID, &b.Username, &b.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse block record"})
		}
		items = append(items, b)
	}
	return c.JSON(http.StatusOK, echo.Map{"blocked": items})
}
