package model

import "time"

// Record is one immutable entry in an asset's ledger. Records are only ever
// appended; state is derived by collapsing them in order.
type Record struct {
	ID         int64      `json:"id"`
	AssetID    int64      `json:"asset_id"`
	UserID     int64      `json:"user_id"`
	AdminID    *int64     `json:"admin_id,omitempty"`
	Type       string     `json:"type"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Created    time.Time  `json:"created"`
}

// Record types. RecordReserved is accepted when deriving state from historic
// data but no operation writes it.
const (
	RecordCreated    = "created"
	RecordCheckedOut = "checked_out"
	RecordCheckedIn  = "checked_in"
	RecordRemoved    = "removed"
	RecordReserved   = "reserved"
)
