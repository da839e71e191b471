package asset

import (
	"fmt"
	"time"

	"github.com/pointsource/checkit/internal/model"
)

// BorrowerYou is the display name substituted when the requesting user is
// the active borrower. Presentation only, never stored.
const BorrowerYou = "You"

// UserRef is a display identity embedded in views.
type UserRef struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name"`
}

// Reservation is the ledger-derived open borrow event for an asset.
type Reservation struct {
	RecordID int64      `json:"id"`
	Type     string     `json:"type"`
	End      *time.Time `json:"end,omitempty"`
	Borrower UserRef    `json:"borrower"`
}

// View is the external representation of an asset. Condensed views (listing)
// omit the descriptive detail fields.
type View struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	State             string       `json:"state"`
	Category          string       `json:"category"`
	OS                string       `json:"os,omitempty"`
	Description       string       `json:"description,omitempty"`
	Location          string       `json:"location,omitempty"`
	Attributes        string       `json:"attributes,omitempty"`
	Image             string       `json:"image,omitempty"`
	ActiveReservation *Reservation `json:"active_reservation"`
}

// HistoryEntry is one ledger record enriched with display identities.
type HistoryEntry struct {
	ID       int64     `json:"id"`
	Created  time.Time `json:"created"`
	Type     string    `json:"type"`
	Borrower UserRef   `json:"borrower"`
	Admin    *UserRef  `json:"admin,omitempty"`
}

// History is the audit view of an asset's full ledger.
type History struct {
	AmountCheckedOut int            `json:"amount_checked_out"`
	Records          []HistoryEntry `json:"records"`
}

// UserReservation is one open loan in a user's reservation list.
type UserReservation struct {
	ID     int64      `json:"id"`
	Status string     `json:"status"`
	End    *time.Time `json:"end,omitempty"`
	Asset  AssetRef   `json:"asset"`
}

// AssetRef is a minimal asset identity for embedding in other views.
type AssetRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ReconcileResult reports a status reconciliation run.
type ReconcileResult struct {
	AssetID int64  `json:"asset_id"`
	Status  string `json:"status"`
	Fixed   bool   `json:"fixed"`
}

// userRef builds a display identity, substituting the "You" sentinel when
// the user is the requester.
func userRef(u *model.User, requesterEmail string) UserRef {
	if u == nil {
		return UserRef{Name: "Unknown"}
	}
	name := u.FullName()
	if requesterEmail != "" && u.Email == requesterEmail {
		name = BorrowerYou
	}
	return UserRef{Email: u.Email, Name: name}
}

// formatView projects an asset plus its derived reservation into a condensed
// or full external representation. The borrower identity honors the "You"
// sentinel for the requesting user.
func formatView(a *model.Asset, open *model.Record, borrower *model.User, condensed bool, requesterEmail string) *View {
	v := &View{
		ID:       a.ID,
		Name:     a.Name,
		State:    a.Status,
		Category: a.Category,
	}
	if !condensed {
		v.OS = a.OS
		v.Description = a.Description
		v.Location = a.Location
		v.Attributes = a.Attributes
		if a.ImageMime != "" {
			v.Image = fmt.Sprintf("/api/assets/%d/image", a.ID)
		}
	}
	if open != nil {
		v.ActiveReservation = &Reservation{
			RecordID: open.ID,
			Type:     open.Type,
			End:      open.ReturnDate,
			Borrower: userRef(borrower, requesterEmail),
		}
	}
	return v
}
