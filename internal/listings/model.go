package listings

import "time"

// Listing is the JSON shape served by the browse and detail endpoints.
type Listing struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Duration    float64   `json:"duration"`
	Capacity    int       `json:"capacity"`
	IsVisible   bool      `json:"is_visible"`
	IsOnline    bool      `json:"is_online"`
	Address     string    `json:"address,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
