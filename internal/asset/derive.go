package asset

import "github.com/pointsource/checkit/internal/model"

// reservationType reports whether a record type participates in reservation
// derivation.
func reservationType(t string) bool {
	return t == model.RecordCheckedOut || t == model.RecordCheckedIn || t == model.RecordReserved
}

// activeReservation collapses an asset's record history (ordered by creation
// ascending) into its single open reservation, if any. Later records shadow
// earlier ones: only the most recent reservation-typed record survives, and
// it only counts as open when it is not a checkin.
func activeReservation(records []model.Record) *model.Record {
	var last *model.Record
	for i := range records {
		if reservationType(records[i].Type) {
			last = &records[i]
		}
	}
	if last == nil || last.Type == model.RecordCheckedIn {
		return nil
	}
	return last
}

// DeriveStatus recomputes an asset's status purely from its ledger, without
// consulting the cached status column. A removed record is terminal.
func DeriveStatus(records []model.Record) string {
	for i := range records {
		if records[i].Type == model.RecordRemoved {
			return model.StatusRetired
		}
	}
	if activeReservation(records) != nil {
		return model.StatusInUse
	}
	return model.StatusAvailable
}

// groupByAsset splits a batch of records (ordered by asset, then creation
// ascending) into per-asset slices, preserving order.
func groupByAsset(records []model.Record) map[int64][]model.Record {
	grouped := make(map[int64][]model.Record)
	for _, r := range records {
		grouped[r.AssetID] = append(grouped[r.AssetID], r)
	}
	return grouped
}
