package domain

import "time"

// JournalEntry es una entrada del diario de sueños de un usuario.
type JournalEntry struct {
	ID       string    `json:"_id"`
	Username string    `json:"username"`
	Title    string    `json:"title"`
	Dream    string    `json:"dream"`
	Tags     []string  `json:"tags"`
	Mood     string    `json:"mood,omitempty"`
	Date     time.Time `json:"date"`
}
