package models

// Event represents one multi-day poker event.
// Deleting an event cascades to its players and settlement edges.
type Event struct {
	// Name is the unique human-readable identifier, e.g. "Friday Game - 2025-01-10".
	Name string `json:"name"`

	// CreatedAt is the Unix timestamp when the event was created.
	CreatedAt int64 `json:"created_at"`
}
