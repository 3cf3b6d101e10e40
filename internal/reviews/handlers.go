package reviews

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

// Review is the JSON shape of one review.
type Review struct {
	ID          string    `json:"id"`
	ReviewerID  string    `json:"reviewer_id"`
	Reviewer    string    `json:"reviewer"`
	TargetID    string    `json:"target_id"`
	ListingID   string    `json:"listing_id"`
	ListingKind string    `json:"listing_kind"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateReview rates the other party of a completed exchange on a listing.
// One review per reviewer per listing.
func CreateReview(c echo.Context) error {
	reviewerID, ok := c.Get("user_id").(string)
	if !ok || reviewerID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		ListingID   string `json:"listing_id"`
		ListingKind string `json:"listing_kind"`
		Rating      int    `json:"rating"`
		Comment     string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if _, err := uuid.Parse(req.ListingID); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id format"})
	}
	if req.ListingKind != "offer" && req.ListingKind != "request" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "listing_kind must be offer or request"})
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rating must be between 1 and 5"})
	}
	if len(req.Comment) > 1000 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "comment too long (max 1000 characters)"})
	}

	ctx := context.Background()

	// The reviewer must have a completed interaction on this listing; the
	// counterpart of that interaction is the review target.
	var senderID, receiverID string
	err := db.Conn.QueryRow(ctx,
		`SELECT sender_id::text, receiver_id::text FROM interactions
		 WHERE listing_id = $1 AND listing_kind = $2 AND status = 'completed'
		   AND (sender_id = $3 OR receiver_id = $3)
		 LIMIT 1`, req.ListingID, req.ListingKind, reviewerID,
	).Scan(&senderID, &receiverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "no completed exchange on this listing to review"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check exchange"})
	}
	targetID := senderID
	if reviewerID == senderID {
		targetID = receiverID
	}

	var existing string
	err = db.Conn.QueryRow(ctx,
		`SELECT id::text FROM reviews WHERE reviewer_id = $1 AND listing_id = $2 AND listing_kind = $3`,
		reviewerID, req.ListingID, req.ListingKind,
	).Scan(&existing)
	if err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already reviewed this listing"})
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check existing review"})
	}

	reviewID := uuid.New().String()
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO reviews (id, reviewer_id, target_id, listing_id, listing_kind, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reviewID, reviewerID, targetID, req.ListingID, req.ListingKind, req.Rating, req.Comment, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create review"})
	}

	return c.JSON(http.StatusCreated, echo.Map{"review_id": reviewID, "message": "review created"})
}

// UserReviews lists reviews received by a user, with the aggregate summary.
func UserReviews(c echo.Context) error {
	targetID := c.Param("id")
	if _, err := uuid.Parse(targetID); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id format"})
	}

	ctx := context.Background()
	rows, err := db.Conn.Query(ctx,
		`SELECT r.id::text, r.reviewer_id::text, u.username, r.target_id::text,
		        r.listing_id::text, r.listing_kind, r.rating, r.comment, r.created_at
		 FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.target_id = $1 ORDER BY r.created_at DESC`, targetID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch reviews"})
	}
	defer rows.Close()

	items := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ReviewerID, &r.Reviewer, &r.TargetID,
			&r.ListingID, &r.ListingKind, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse review record"})
		}
		items = append(items, r)
	}

	var count int
	var avg float64
	if err := db.Conn.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(rating)::float, 0) FROM reviews WHERE target_id = $1`, targetID,
	).Scan(&count, &avg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch review summary"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"reviews": items,
		"summary": echo.Map{"count": count, "average_rating": avg},
	})
}
