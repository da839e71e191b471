package model

import "time"

// Asset represents a trackable device or item. Status is a cached projection
// of the asset's ledger; the records table remains the source of truth.
type Asset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	OS          string    `json:"os"`
	Location    string    `json:"location"`
	Attributes  string    `json:"attributes"`
	ImageMime   string    `json:"-"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Asset statuses.
const (
	StatusAvailable = "available"
	StatusInUse     = "in_use"
	StatusRetired   = "retired"
)

// Categories lists the accepted asset categories.
var Categories = []string{"phone", "tablet", "laptop", "camera", "software", "book", "misc"}

// ValidCategory reports whether category is one of the accepted categories.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
