package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
	"github.com/timebankhq/timebank/internal/timebank"
)

// TransactionResponse is the JSON shape of one ledger entry.
type TransactionResponse struct {
	ID          string    `json:"id"`
	ListingID   string    `json:"listing_id"`
	ListingKind string    `json:"listing_kind"`
	FromUserID  string    `json:"from_user_id"`
	ToUserID    string    `json:"to_user_id"`
	Amount      float64   `json:"amount"`
	Direction   string    `json:"direction"` // sent | received
	CreatedAt   time.Time `json:"created_at"`
}

// Balance returns the authenticated user's hour balance. The profile row
// is created lazily with the initial grant if signup predates the ledger.
func Balance(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO profiles (user_id, balance) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, timebank.InitialBalance)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch balance"})
	}

	var balance float64
	err = db.Conn.QueryRow(context.Background(),
		`SELECT balance FROM profiles WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch balance"})
	}

	return c.JSON(http.StatusOK, echo.Map{"balance": balance, "unit": "hours"})
}

// Transactions returns the user's ledger entries, newest first, tagged with
// the direction relative to the caller.
func Transactions(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id::text, listing_id::text, listing_kind, from_user_id::text, to_user_id::text, amount, created_at
		 FROM transactions
		 WHERE from_user_id = $1 OR to_user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch transactions"})
	}
	defer rows.Close()

	txs := []TransactionResponse{}
	for rows.Next() {
		var t TransactionResponse
		if err := rows.Scan(&t.ID, &t.ListingID, &t.ListingKind, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read transaction record"})
		}
		if t.FromUserID == userID {
			t.Direction = "sent"
		} else {
			t.Direction = "received"
		}
		txs = append(txs, t)
	}

	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
