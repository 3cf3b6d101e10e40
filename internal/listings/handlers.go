package listings

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/db"
	"github.com/timebankhq/timebank/internal/timebank"
)

// CreateOffer lists a new service offer.
func CreateOffer(c echo.Context) error {
	return createListing(c, timebank.KindOffer)
}

// CreateRequest lists a new service request.
func CreateRequest(c echo.Context) error {
	return createListing(c, timebank.KindRequest)
}

func createListing(c echo.Context, kind timebank.ListingKind) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Category    string   `json:"category"`
		Duration    float64  `json:"duration"`
		Capacity    int      `json:"capacity"`
		IsOnline    bool     `json:"is_online"`
		Address     string   `json:"address"`
		Lat         *float64 `json:"lat"`
		Lng         *float64 `json:"lng"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	if req.Duration <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "duration must be a positive number of hours"})
	}
	if req.IsOnline && req.Address != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a listing is either online or at an address, not both"})
	}
	if !req.IsOnline && req.Address == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide an address or mark the listing online"})
	}
	if req.Capacity < 1 {
		req.Capacity = 1
	}
	// Group mode only applies to offers.
	if kind == timebank.KindRequest {
		req.Capacity = 1
	}

	listingID := uuid.New().String()
	_, err := db.Conn.Exec(
		context.Background(),
		`INSERT INTO listings (id, kind, user_id, title, description, category, duration, capacity, is_visible, is_online, address, lat, lng, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11, $12, $13)`,
		listingID, string(kind), uid, req.Title, req.Description, req.Category,
		req.Duration, req.Capacity, req.IsOnline, req.Address, req.Lat, req.Lng, time.Now(),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create listing"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"listing_id": listingID,
		"kind":       string(kind),
		"message":    "listing created successfully",
	})
}

// BrowseOffers returns offers currently open to the viewer.
func BrowseOffers(c echo.Context) error {
	return browse(c, timebank.KindOffer)
}

// BrowseRequests returns requests currently open to the viewer.
func BrowseRequests(c echo.Context) error {
	return browse(c, timebank.KindRequest)
}

func browse(c echo.Context, kind timebank.ListingKind) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	q := c.QueryParam("q")
	category := c.QueryParam("category")
	limit := 20
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	query := `SELECT l.id::text, l.kind, l.user_id::text, u.username, l.title, l.description, l.category,
	                 l.duration, l.capacity, l.is_visible, l.is_online, l.address, l.lat, l.lng, l.created_at
	          FROM listings l
	          JOIN users u ON u.id = l.user_id
	          WHERE l.kind = $1 AND l.is_visible = TRUE AND u.is_active = TRUE
	            AND l.user_id <> $2
	            AND NOT EXISTS (
	                SELECT 1 FROM blocks b
	                WHERE (b.blocker_id = $2 AND b.blocked_id = l.user_id)
	                   OR (b.blocker_id = l.user_id AND b.blocked_id = $2))`
	args := []any{string(kind), uid}
	if q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND (l.title ILIKE $%d OR l.description ILIKE $%d)", len(args), len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND l.category = $%d", len(args))
	}
	query += " ORDER BY l.created_at DESC"

	rows, err := db.Conn.Query(context.Background(), query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch listings"})
	}
	defer rows.Close()

	var candidates []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Kind, &l.UserID, &l.Username, &l.Title, &l.Description, &l.Category,
			&l.Duration, &l.Capacity, &l.IsVisible, &l.IsOnline, &l.Address, &l.Lat, &l.Lng, &l.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse listing record"})
		}
		candidates = append(candidates, l)
	}
	rows.Close()

	// Availability cannot be decided from the listing row alone; it depends
	// on the interactions already open against each listing.
	open := []Listing{}
	for _, l := range candidates {
		available, err := listingAvailable(&l)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch listings"})
		}
		if available {
			open = append(open, l)
		}
	}

	if offset > len(open) {
		offset = len(open)
	}
	end := offset + limit
	if end > len(open) {
		end = len(open)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": open[offset:end], "total": len(open)})
}

func listingAvailable(l *Listing) (bool, error) {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT status FROM interactions WHERE listing_id = $1 AND listing_kind = $2`, l.ID, l.Kind)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var interactions []*timebank.Interaction
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return false, err
		}
		interactions = append(interactions, &timebank.Interaction{Status: timebank.Status(status)})
	}
	tl := &timebank.Listing{
		Kind:     timebank.ListingKind(l.Kind),
		Capacity: l.Capacity,
		Visible:  l.IsVisible,
	}
	return timebank.Available(tl, interactions), nil
}

// GetListing returns a single listing with its current availability.
func GetListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	kind := c.Param("kind")
	if kind != "offer" && kind != "request" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be offer or request"})
	}
	id := c.Param("id")

	var l Listing
	err := db.Conn.QueryRow(context.Background(),
		`SELECT l.id::text, l.kind, l.user_id::text, u.username, l.title, l.description, l.category,
		        l.duration, l.capacity, l.is_visible, l.is_online, l.address, l.lat, l.lng, l.created_at
		 FROM listings l JOIN users u ON u.id = l.user_id
		 WHERE l.id = $1 AND l.kind = $2`, id, kind,
	).Scan(&l.ID, &l.Kind, &l.UserID, &l.Username, &l.Title, &l.Description, &l.Category,
		&l.Duration, &l.Capacity, &l.IsVisible, &l.IsOnline, &l.Address, &l.Lat, &l.Lng, &l.CreatedAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}

	if blocked, err := eitherBlocked(uid, l.UserID); err == nil && blocked && l.UserID != uid {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}

	available, err := listingAvailable(&l)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch listing"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listing": l, "available": available})
}

func eitherBlocked(a, b string) (bool, error) {
	var blocked bool
	err := db.Conn.QueryRow(context.Background(),
		`SELECT EXISTS (
		    SELECT 1 FROM blocks
		    WHERE (blocker_id = $1 AND blocked_id = $2)
		       OR (blocker_id = $2 AND blocked_id = $1))`, a, b,
	).Scan(&blocked)
	return blocked, err
}

// MyListings returns everything the user has listed, both kinds, open or not.
func MyListings(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT l.id::text, l.kind, l.user_id::text, u.username, l.title, l.description, l.category,
		        l.duration, l.capacity, l.is_visible, l.is_online, l.address, l.lat, l.lng, l.created_at
		 FROM listings l JOIN users u ON u.id = l.user_id
		 WHERE l.user_id = $1 ORDER BY l.created_at DESC`, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch listings"})
	}
	defer rows.Close()

	items := []Listing{}
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Kind, &l.UserID, &l.Username, &l.Title, &l.Description, &l.Category,
			&l.Duration, &l.Capacity, &l.IsVisible, &l.IsOnline, &l.Address, &l.Lat, &l.Lng, &l.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse listing record"})
		}
		items = append(items, l)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": items})
}

// UpdateListing edits a listing's fields; only the owner may edit.
// Setting is_visible=false hides the listing from browse without deleting it.
func UpdateListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	kind := c.Param("kind")
	id := c.Param("id")

	var req struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Category    *string  `json:"category"`
		Duration    *float64 `json:"duration"`
		IsVisible   *bool    `json:"is_visible"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title cannot be empty"})
		}
		add("title", *req.Title)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Category != nil {
		add("category", *req.Category)
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "duration must be a positive number of hours"})
		}
		add("duration", *req.Duration)
	}
	if req.IsVisible != nil {
		add("is_visible", *req.IsVisible)
	}
	if len(set) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}

	args = append(args, id, kind, uid)
	query := fmt.Sprintf(`UPDATE listings SET %s WHERE id = $%d AND kind = $%d AND user_id = $%d`,
		strings.Join(set, ", "), len(args)-2, len(args)-1, len(args))
	res, err := db.Conn.Exec(context.Background(), query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update listing"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "listing updated"})
}

// DeleteListing removes a listing; only the owner may delete.
func DeleteListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	kind := c.Param("kind")
	id := c.Param("id")

	res, err := db.Conn.Exec(context.Background(),
		`DELETE FROM listings WHERE id = $1 AND kind = $2 AND user_id = $3`, id, kind, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not delete listing"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "listing deleted"})
}
