package interactions

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/httpx"
	"github.com/timebankhq/timebank/internal/timebank"
)

var engine *timebank.Engine

// Init wires the shared engine; called once from main before routes.
func Init(e *timebank.Engine) {
	engine = e
}

func actor(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	return uid, ok && uid != ""
}

// Create opens an interaction on a listing with an initial message.
func Create(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		ListingID   string `json:"listing_id"`
		ListingKind string `json:"listing_kind"`
		Message     string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.ListingID == "" || (req.ListingKind != "offer" && req.ListingKind != "request") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "listing_id and listing_kind (offer|request) are required"})
	}

	ref := timebank.ListingRef{Kind: timebank.ListingKind(req.ListingKind), ID: req.ListingID}
	i, err := engine.Create(c.Request().Context(), uid, ref, req.Message)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"interaction": render(i)})
}

// Accept approves a pending interaction; receiver only.
func Accept(c echo.Context) error {
	return transition(c, engineAccept)
}

// Decline rejects a pending interaction; receiver only.
func Decline(c echo.Context) error {
	return transition(c, engineDecline)
}

func engineAccept(c echo.Context, uid, id string) (*timebank.Interaction, error) {
	return engine.Accept(c.Request().Context(), uid, id)
}

func engineDecline(c echo.Context, uid, id string) (*timebank.Interaction, error) {
	return engine.Decline(c.Request().Context(), uid, id)
}

func transition(c echo.Context, fn func(echo.Context, string, string) (*timebank.Interaction, error)) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	i, err := fn(c, uid, c.Param("id"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"interaction": render(i)})
}

// Schedule proposes an appointment date.
func Schedule(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Date time.Time `json:"date"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Date.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date is required"})
	}

	i, err := engine.Schedule(c.Request().Context(), uid, c.Param("id"), req.Date)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"interaction": render(i)})
}

// RejectDate turns down the open date proposal; only the counterpart may.
func RejectDate(c echo.Context) error {
	return transition(c, func(c echo.Context, uid, id string) (*timebank.Interaction, error) {
		return engine.RejectDate(c.Request().Context(), uid, id)
	})
}

// AcceptDate locks in the proposed date; only the counterpart may.
func AcceptDate(c echo.Context) error {
	return transition(c, func(c echo.Context, uid, id string) (*timebank.Interaction, error) {
		return engine.AcceptDate(c.Request().Context(), uid, id)
	})
}

// Complete marks the service delivered; provider only.
func Complete(c echo.Context) error {
	return transition(c, func(c echo.Context, uid, id string) (*timebank.Interaction, error) {
		return engine.Complete(c.Request().Context(), uid, id)
	})
}

// Confirm acknowledges delivery and settles the hours; consumer only.
func Confirm(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := engine.Confirm(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"state": string(res.State)})
}

// DeleteConversation hides the conversation on the caller's side only.
func DeleteConversation(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := engine.DeleteConversation(c.Request().Context(), uid, c.Param("id")); err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "conversation removed"})
}

// Get returns a single interaction the caller is a party to.
func Get(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	i, err := engine.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"interaction": render(i)})
}

// Inbox lists the caller's conversations, most recent first.
func Inbox(c echo.Context) error {
	uid, ok := actor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := engine.Inbox(c.Request().Context(), uid)
	if err != nil {
		return httpx.Error(c, err)
	}
	out := make([]echo.Map, 0, len(items))
	for _, i := range items {
		out = append(out, render(i))
	}
	return c.JSON(http.StatusOK, echo.Map{"interactions": out})
}

func render(i *timebank.Interaction) echo.Map {
	m := echo.Map{
		"id":                    i.ID,
		"listing_id":            i.Listing.ID,
		"listing_kind":          string(i.Listing.Kind),
		"sender_id":             i.SenderID,
		"receiver_id":           i.ReceiverID,
		"status":                string(i.Status),
		"completed_by_provider": i.CompletedByProvider,
		"confirmed_by_receiver": i.ConfirmedByReceiver,
		"created_at":            i.CreatedAt,
	}
	if i.AppointmentDate != nil {
		m["appointment_date"] = i.AppointmentDate
	}
	if i.DateProposedBy != "" {
		m["date_proposed_by"] = i.DateProposedBy
	}
	return m
}
