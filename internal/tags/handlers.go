package tags

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

var client *Client

// Init wires the shared lookup client; called once from main.
func Init(c *Client) {
	client = c
}

// Suggest returns tag candidates for the query string. Lookup failures
// degrade to an empty list; tagging is never load-bearing.
func Suggest(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "q is required"})
	}
	limit := 10
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}

	suggestions, err := client.Suggest(c.Request().Context(), q, limit)
	if err != nil {
		log.Printf("[tags][WARN] suggest failed q=%q: %v", q, err)
		suggestions = []Suggestion{}
	}
	return c.JSON(http.StatusOK, echo.Map{"suggestions": suggestions})
}
