package asset

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pointsource/checkit/internal/model"
	"github.com/pointsource/checkit/internal/store"
)

// Notifier accepts a best-effort human-readable notification. Delivery is
// fire-and-forget; implementations must never block the caller for long.
type Notifier interface {
	Enqueue(message string)
}

// Service orchestrates the asset lifecycle. All mutating operations are
// serialized through a single process-wide mutex so that the
// [append record, update status] sequence is atomic with respect to every
// other write, across all assets. Reads bypass the lock and may observe
// pre- or post-transition state.
type Service struct {
	db       *sql.DB
	notifier Notifier

	mu sync.Mutex
}

// NewService creates an asset lifecycle service.
func NewService(db *sql.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// UserInfo identifies the target user of a for-user operation.
type UserInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateInput holds the descriptive fields of a new asset.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	OS          string `json:"os"`
	Location    string `json:"location"`
	Attributes  string `json:"attributes"`
}

// Assets returns condensed views of all non-retired assets, optionally
// filtered by category. An empty result is a NotFoundError, matching the
// listing contract.
func (s *Service) Assets(ctx context.Context, category, requesterEmail string) ([]*View, error) {
	if category != "" && !model.ValidCategory(category) {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown asset type: %s", category)}
	}

	assets, err := store.ListAssets(ctx, s.db, category)
	if err != nil {
		return nil, persistence("listing assets", err)
	}
	if len(assets) == 0 {
		if category == "" {
			return nil, &NotFoundError{Message: "no assets found"}
		}
		return nil, &NotFoundError{Message: fmt.Sprintf("no assets found for type: %s", category)}
	}

	ids := make([]int64, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	records, err := store.RecordsByAssets(ctx, s.db, ids)
	if err != nil {
		return nil, persistence("listing asset records", err)
	}
	grouped := groupByAsset(records)

	// Collapse each asset's history and collect the borrowers we need to
	// resolve for display.
	open := make(map[int64]*model.Record, len(assets))
	var borrowerIDs []int64
	for _, a := range assets {
		if r := activeReservation(grouped[a.ID]); r != nil {
			open[a.ID] = r
			borrowerIDs = append(borrowerIDs, r.UserID)
		}
	}
	borrowers, err := store.UsersByIDs(ctx, s.db, borrowerIDs)
	if err != nil {
		return nil, persistence("resolving borrowers", err)
	}

	views := make([]*View, len(assets))
	for i := range assets {
		a := &assets[i]
		var borrower *model.User
		if r := open[a.ID]; r != nil {
			if u, ok := borrowers[r.UserID]; ok {
				borrower = &u
			}
		}
		views[i] = formatView(a, open[a.ID], borrower, true, requesterEmail)
	}
	return views, nil
}

// Details returns the full view of one asset, including its ledger-derived
// active reservation.
func (s *Service) Details(ctx context.Context, assetID int64, requesterEmail string) (*View, error) {
	a, err := store.GetAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("getting asset", err)
	}
	if a == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("no asset found with id %d", assetID)}
	}

	records, err := store.RecordsByAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("listing asset records", err)
	}

	open := activeReservation(records)
	var borrower *model.User
	if open != nil {
		borrower, err = store.GetUser(ctx, s.db, open.UserID)
		if err != nil {
			return nil, persistence("resolving borrower", err)
		}
	}
	return formatView(a, open, borrower, false, requesterEmail), nil
}

// AssetRecords returns an asset's full ledger, newest first, enriched with
// borrower and admin display identities, plus a count of checkout events.
func (s *Service) AssetRecords(ctx context.Context, assetID int64) (*History, error) {
	a, err := store.GetAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("getting asset", err)
	}
	if a == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("no asset found with id %d", assetID)}
	}

	records, err := store.RecordsByAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("listing asset records", err)
	}

	var userIDs []int64
	for _, r := range records {
		userIDs = append(userIDs, r.UserID)
		if r.AdminID != nil {
			userIDs = append(userIDs, *r.AdminID)
		}
	}
	users, err := store.UsersByIDs(ctx, s.db, userIDs)
	if err != nil {
		return nil, persistence("resolving record users", err)
	}

	history := &History{Records: make([]HistoryEntry, 0, len(records))}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Type == model.RecordCheckedOut {
			history.AmountCheckedOut++
		}

		entry := HistoryEntry{
			ID:      r.ID,
			Created: r.Created,
			Type:    r.Type,
		}
		if u, ok := users[r.UserID]; ok {
			entry.Borrower = userRef(&u, "")
		} else {
			entry.Borrower = userRef(nil, "")
		}
		if r.AdminID != nil {
			if u, ok := users[*r.AdminID]; ok {
				ref := userRef(&u, "")
				entry.Admin = &ref
			}
		}
		history.Records = append(history.Records, entry)
	}
	return history, nil
}

// UserReservations returns the caller's open loans: the last-write-wins
// collapse of their records per asset, keeping only entries that are not
// checkins.
func (s *Service) UserReservations(ctx context.Context, email string) ([]UserReservation, error) {
	if email == "" {
		return nil, &ValidationError{Message: "user email required"}
	}
	user, err := store.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, persistence("getting user", err)
	}
	if user == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("no user found with email %s", email)}
	}

	records, err := store.RecordsByUser(ctx, s.db, user.ID)
	if err != nil {
		return nil, persistence("listing user records", err)
	}

	// Later records shadow earlier ones per asset.
	latest := make(map[int64]model.Record)
	var order []int64
	for _, r := range records {
		if _, seen := latest[r.AssetID]; !seen {
			order = append(order, r.AssetID)
		}
		latest[r.AssetID] = r
	}

	var assetIDs []int64
	for _, id := range order {
		if latest[id].Type != model.RecordCheckedIn {
			assetIDs = append(assetIDs, id)
		}
	}
	assets, err := store.AssetsByIDs(ctx, s.db, assetIDs)
	if err != nil {
		return nil, persistence("resolving assets", err)
	}

	reservations := make([]UserReservation, 0, len(assetIDs))
	for _, id := range assetIDs {
		r := latest[id]
		ref := AssetRef{ID: id}
		if a, ok := assets[id]; ok {
			ref.Name = a.Name
		}
		reservations = append(reservations, UserReservation{
			ID:     r.ID,
			Status: r.Type,
			End:    r.ReturnDate,
			Asset:  ref,
		})
	}
	return reservations, nil
}

// Checkout marks an asset as borrowed by the acting user.
func (s *Service) Checkout(ctx context.Context, assetID int64, returnDate *time.Time, actorEmail string) (*View, error) {
	s.mu.Lock()
	view, notice, err := s.checkoutLocked(ctx, assetID, returnDate, actorEmail, "")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

// CheckoutForUser lets an admin check out an asset on behalf of another
// user, creating the target user if previously unknown.
func (s *Service) CheckoutForUser(ctx context.Context, assetID int64, returnDate *time.Time, adminEmail string, target UserInfo) (*View, error) {
	if target.Email == "" {
		return nil, &ValidationError{Message: "target user email required"}
	}
	s.mu.Lock()
	// Resolve-or-create the target before the transition, like any other
	// identity lookup inside the critical section.
	if _, err := store.EnsureUser(ctx, s.db, target.Email, target.FirstName, target.LastName); err != nil {
		s.mu.Unlock()
		return nil, persistence("ensuring target user", err)
	}
	view, notice, err := s.checkoutLocked(ctx, assetID, returnDate, target.Email, adminEmail)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

// checkoutLocked performs the checkout transition. Caller must hold s.mu.
// When adminEmail is non-empty this is a for-user checkout and the record
// carries the admin identity.
func (s *Service) checkoutLocked(ctx context.Context, assetID int64, returnDate *time.Time, borrowerEmail, adminEmail string) (*View, string, error) {
	borrower, err := s.userByEmail(ctx, borrowerEmail)
	if err != nil {
		return nil, "", err
	}

	var admin *model.User
	if adminEmail != "" {
		admin, err = s.userByEmail(ctx, adminEmail)
		if err != nil {
			return nil, "", err
		}
	}

	a, err := s.assetByID(ctx, assetID)
	if err != nil {
		return nil, "", err
	}
	if a.Status == model.StatusRetired {
		return nil, "", &ValidationError{Message: fmt.Sprintf("asset %d is retired", assetID)}
	}
	if a.Status != model.StatusAvailable {
		// Someone else holds the asset. Surface the current view as a
		// retryable conflict rather than a hard failure.
		view, _ := s.Details(ctx, assetID, borrowerEmail)
		return nil, "", &ConflictError{AssetID: assetID, Asset: view}
	}

	record := &model.Record{
		AssetID:    assetID,
		UserID:     borrower.ID,
		Type:       model.RecordCheckedOut,
		ReturnDate: returnDate,
	}
	if admin != nil {
		record.AdminID = &admin.ID
	}
	if _, err := store.AppendRecord(ctx, s.db, record); err != nil {
		return nil, "", persistence("appending checkout record", err)
	}

	view, err := s.changeStatus(ctx, assetID, model.StatusInUse, borrowerEmail)
	if err != nil {
		return nil, "", err
	}

	notice := fmt.Sprintf("%s checked out %s.", borrower.FullName(), a.Name)
	if admin != nil {
		notice = fmt.Sprintf("%s checked out %s for %s.", admin.FullName(), a.Name, borrower.FullName())
	}
	return view, notice, nil
}

// Checkin returns an asset to the available pool.
func (s *Service) Checkin(ctx context.Context, assetID int64, actorEmail string) (*View, error) {
	s.mu.Lock()
	view, notice, err := s.checkinLocked(ctx, assetID, actorEmail, "")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

// CheckinForUser lets an admin check in an asset on behalf of another user.
// Unlike checkout, the target user must already exist.
func (s *Service) CheckinForUser(ctx context.Context, assetID int64, adminEmail string, target UserInfo) (*View, error) {
	if target.Email == "" {
		return nil, &ValidationError{Message: "target user email required"}
	}
	s.mu.Lock()
	view, notice, err := s.checkinLocked(ctx, assetID, target.Email, adminEmail)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

// checkinLocked performs the checkin transition. Caller must hold s.mu.
func (s *Service) checkinLocked(ctx context.Context, assetID int64, borrowerEmail, adminEmail string) (*View, string, error) {
	borrower, err := s.userByEmail(ctx, borrowerEmail)
	if err != nil {
		return nil, "", err
	}

	var admin *model.User
	if adminEmail != "" {
		admin, err = s.userByEmail(ctx, adminEmail)
		if err != nil {
			return nil, "", err
		}
	}

	a, err := s.assetByID(ctx, assetID)
	if err != nil {
		return nil, "", err
	}
	if a.Status == model.StatusRetired {
		return nil, "", &ValidationError{Message: fmt.Sprintf("asset %d is retired", assetID)}
	}

	record := &model.Record{
		AssetID: assetID,
		UserID:  borrower.ID,
		Type:    model.RecordCheckedIn,
	}
	if admin != nil {
		record.AdminID = &admin.ID
	}
	if _, err := store.AppendRecord(ctx, s.db, record); err != nil {
		return nil, "", persistence("appending checkin record", err)
	}

	view, err := s.changeStatus(ctx, assetID, model.StatusAvailable, borrowerEmail)
	if err != nil {
		return nil, "", err
	}

	notice := fmt.Sprintf("%s checked in %s.", borrower.FullName(), a.Name)
	if admin != nil {
		notice = fmt.Sprintf("%s checked in %s for %s.", admin.FullName(), a.Name, borrower.FullName())
	}
	return view, notice, nil
}

// Remove retires an asset permanently. The removed record stays in the
// ledger and the status becomes terminal.
func (s *Service) Remove(ctx context.Context, assetID int64, actorEmail string) (*View, error) {
	s.mu.Lock()
	view, notice, err := s.removeLocked(ctx, assetID, actorEmail)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

func (s *Service) removeLocked(ctx context.Context, assetID int64, actorEmail string) (*View, string, error) {
	actor, err := s.userByEmail(ctx, actorEmail)
	if err != nil {
		return nil, "", err
	}
	a, err := s.assetByID(ctx, assetID)
	if err != nil {
		return nil, "", err
	}
	if a.Status == model.StatusRetired {
		return nil, "", &ValidationError{Message: fmt.Sprintf("asset %d is already retired", assetID)}
	}

	record := &model.Record{
		AssetID: assetID,
		UserID:  actor.ID,
		Type:    model.RecordRemoved,
	}
	if _, err := store.AppendRecord(ctx, s.db, record); err != nil {
		return nil, "", persistence("appending removal record", err)
	}

	view, err := s.changeStatus(ctx, assetID, model.StatusRetired, actorEmail)
	if err != nil {
		return nil, "", err
	}
	return view, fmt.Sprintf("%s removed %s.", actor.FullName(), a.Name), nil
}

// Create inserts a new asset with a 'created' ledger record.
func (s *Service) Create(ctx context.Context, input CreateInput, actorEmail string) (*View, error) {
	if input.Name == "" {
		return nil, &ValidationError{Message: "asset name required"}
	}
	if input.Category == "" {
		input.Category = "misc"
	}
	if !model.ValidCategory(input.Category) {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown asset type: %s", input.Category)}
	}

	s.mu.Lock()
	view, notice, err := s.createLocked(ctx, input, actorEmail)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.enqueue(notice)
	return view, nil
}

func (s *Service) createLocked(ctx context.Context, input CreateInput, actorEmail string) (*View, string, error) {
	actor, err := s.userByEmail(ctx, actorEmail)
	if err != nil {
		return nil, "", err
	}

	a, err := store.CreateAsset(ctx, s.db, &model.Asset{
		Name:        input.Name,
		Description: input.Description,
		Category:    input.Category,
		OS:          input.OS,
		Location:    input.Location,
		Attributes:  input.Attributes,
	})
	if err != nil {
		return nil, "", persistence("creating asset", err)
	}

	record := &model.Record{AssetID: a.ID, UserID: actor.ID, Type: model.RecordCreated}
	if _, err := store.AppendRecord(ctx, s.db, record); err != nil {
		return nil, "", persistence("appending creation record", err)
	}

	view, err := s.Details(ctx, a.ID, actorEmail)
	if err != nil {
		return nil, "", err
	}
	return view, fmt.Sprintf("%s added %s.", actor.FullName(), a.Name), nil
}

// Edit applies a partial update to an asset's descriptive fields. No ledger
// entry is written and the status is left untouched, so the lifecycle lock
// is not taken.
func (s *Service) Edit(ctx context.Context, assetID int64, patch store.AssetPatch, actorEmail string) (*View, error) {
	actor, err := s.userByEmail(ctx, actorEmail)
	if err != nil {
		return nil, err
	}
	a, err := s.assetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if patch.Category != nil && !model.ValidCategory(*patch.Category) {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown asset type: %s", *patch.Category)}
	}

	if err := store.PatchAsset(ctx, s.db, assetID, patch); err != nil {
		return nil, persistence("patching asset", err)
	}

	view, err := s.Details(ctx, assetID, actorEmail)
	if err != nil {
		return nil, err
	}
	s.enqueue(fmt.Sprintf("%s edited %s.", actor.FullName(), a.Name))
	return view, nil
}

// Reconcile recomputes an asset's status from its ledger and repairs the
// cached column if it drifted. Runs under the lifecycle lock so it cannot
// interleave with a transition.
func (s *Service) Reconcile(ctx context.Context, assetID int64) (*ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.assetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	records, err := store.RecordsByAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("listing asset records", err)
	}

	derived := DeriveStatus(records)
	result := &ReconcileResult{AssetID: assetID, Status: derived}
	if derived != a.Status {
		if err := store.UpdateAssetStatus(ctx, s.db, assetID, derived); err != nil {
			return nil, persistence("updating asset status", err)
		}
		result.Fixed = true
	}
	return result, nil
}

// changeStatus re-fetches the asset, writes the new cached status, and
// returns the fresh detail view. An asset that vanished between the ledger
// append and this re-fetch means another operation has it in a transient
// state: surfaced as a conflict, never as a not-found.
func (s *Service) changeStatus(ctx context.Context, assetID int64, status, requesterEmail string) (*View, error) {
	a, err := store.GetAsset(ctx, s.db, assetID)
	if err != nil {
		return nil, persistence("getting asset", err)
	}
	if a == nil {
		view, _ := s.Details(ctx, assetID, requesterEmail)
		return nil, &ConflictError{AssetID: assetID, Asset: view}
	}

	if err := store.UpdateAssetStatus(ctx, s.db, assetID, status); err != nil {
		return nil, persistence("updating asset status", err)
	}
	return s.Details(ctx, assetID, requesterEmail)
}

// userByEmail resolves a user or returns a NotFoundError.
func (s *Service) userByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, &ValidationError{Message: "user email required"}
	}
	u, err := store.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, persistence("getting user", err)
	}
	if u == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("no user found with email %s", email)}
	}
	return u, nil
}

// assetByID resolves an asset or returns a NotFoundError.
func (s *Service) assetByID(ctx context.Context, id int64) (*model.Asset, error) {
	a, err := store.GetAsset(ctx, s.db, id)
	if err != nil {
		return nil, persistence("getting asset", err)
	}
	if a == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("no asset found with id %d", id)}
	}
	return a, nil
}

// enqueue hands a notification to the dispatcher. Failures downstream are
// the dispatcher's problem; nothing here can fail the transition.
func (s *Service) enqueue(message string) {
	if s.notifier != nil && message != "" {
		s.notifier.Enqueue(message)
	}
}
