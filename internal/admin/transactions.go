package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
)

// AdminTransaction is the admin-facing view of a ledger entry.
type AdminTransaction struct {
	ID          string    `json:"id"`
	ListingID   string    `json:"listing_id"`
	ListingKind string    `json:"listing_kind"`
	FromUserID  string    `json:"from_user_id"`
	ToUserID    string    `json:"to_user_id"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTransactions returns the full ledger for monitoring.
func ListTransactions(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, listing_id::text, listing_kind, from_user_id::text, to_user_id::text, amount, created_at
		 FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch transactions"})
	}
	defer rows.Close()

	txs := []AdminTransaction{}
	for rows.Next() {
		var t AdminTransaction
		if err := rows.Scan(&t.ID, &t.ListingID, &t.ListingKind, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read transaction record"})
		}
		txs = append(txs, t)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// UserTransactions returns one member's ledger entries.
func UserTransactions(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user ID is required"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, listing_id::text, listing_kind, from_user_id::text, to_user_id::text, amount, created_at
		 FROM transactions WHERE from_user_id = $1 OR to_user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch user transactions"})
	}
	defer rows.Close()

	txs := []AdminTransaction{}
	for rows.Next() {
		var t AdminTransaction
		if err := rows.Scan(&t.ID, &t.ListingID, &t.ListingKind, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read transaction record"})
		}
		txs = append(txs, t)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
