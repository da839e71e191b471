package asset

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsource/checkit/internal/db"
	"github.com/pointsource/checkit/internal/model"
	"github.com/pointsource/checkit/internal/store"
)

const (
	adminEmail = "ada@example.com"
	userEmail  = "bob@example.com"
)

// captureNotifier records enqueued messages for assertions.
type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Enqueue(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *captureNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func newTestService(t *testing.T) (*Service, *sql.DB, *captureNotifier) {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, database, adminEmail, "Ada", "Admin", "", model.RoleAdmin); err != nil {
		t.Fatalf("creating admin: %v", err)
	}
	if _, err := store.CreateUser(ctx, database, userEmail, "Bob", "Borrower", "", model.RoleUser); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	notifier := &captureNotifier{}
	return NewService(database, notifier), database, notifier
}

func createAsset(t *testing.T, s *Service, name string) int64 {
	t.Helper()
	view, err := s.Create(context.Background(), CreateInput{Name: name, Category: "laptop"}, adminEmail)
	if err != nil {
		t.Fatalf("creating asset: %v", err)
	}
	return view.ID
}

func TestCheckoutCheckinFlow(t *testing.T) {
	s, _, notifier := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "MacBook Pro")

	end := time.Now().Add(72 * time.Hour)
	view, err := s.Checkout(ctx, id, &end, userEmail)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInUse, view.State)
	require.NotNil(t, view.ActiveReservation)
	assert.Equal(t, BorrowerYou, view.ActiveReservation.Borrower.Name)
	require.NotNil(t, view.ActiveReservation.End)

	view, err = s.Checkin(ctx, id, userEmail)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, view.State)
	assert.Nil(t, view.ActiveReservation)

	history, err := s.AssetRecords(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, history.AmountCheckedOut)
	require.Len(t, history.Records, 3)
	// Newest first.
	assert.Equal(t, model.RecordCheckedIn, history.Records[0].Type)
	assert.Equal(t, model.RecordCheckedOut, history.Records[1].Type)
	assert.Equal(t, model.RecordCreated, history.Records[2].Type)

	messages := notifier.all()
	assert.Contains(t, messages, "Bob Borrower checked out MacBook Pro.")
	assert.Contains(t, messages, "Bob Borrower checked in MacBook Pro.")
}

func TestCheckoutConflict(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "iPad")

	_, err := s.Checkout(ctx, id, nil, userEmail)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, id, nil, adminEmail)
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, id, conflict.AssetID)
	// The conflict carries the current view so the caller sees fresh state.
	require.NotNil(t, conflict.Asset)
	assert.Equal(t, model.StatusInUse, conflict.Asset.State)
}

func TestCheckoutUnknownAsset(t *testing.T) {
	s, _, _ := newTestService(t)

	_, err := s.Checkout(context.Background(), 9999, nil, userEmail)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCheckoutUnknownUser(t *testing.T) {
	s, _, _ := newTestService(t)
	id := createAsset(t, s, "Pixel")

	_, err := s.Checkout(context.Background(), id, nil, "nobody@example.com")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRemoveIsTerminal(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Old Thinkpad")

	view, err := s.Remove(ctx, id, adminEmail)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRetired, view.State)

	var validation *ValidationError

	// Removing again is rejected.
	_, err = s.Remove(ctx, id, adminEmail)
	require.ErrorAs(t, err, &validation)

	// So is checking out a retired asset.
	_, err = s.Checkout(ctx, id, nil, userEmail)
	require.ErrorAs(t, err, &validation)

	// The ledger survives removal.
	history, err := s.AssetRecords(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RecordRemoved, history.Records[0].Type)
}

func TestCheckoutForCreatesUser(t *testing.T) {
	s, database, notifier := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Canon EOS")

	target := UserInfo{Email: "carol@example.com", FirstName: "Carol", LastName: "New"}
	view, err := s.CheckoutForUser(ctx, id, nil, adminEmail, target)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInUse, view.State)
	require.NotNil(t, view.ActiveReservation)
	assert.Equal(t, "Carol New", view.ActiveReservation.Borrower.Name)

	// The target user was created on the fly, without login credentials.
	carol, err := store.GetUserByEmail(ctx, database, "carol@example.com")
	require.NoError(t, err)
	require.NotNil(t, carol)
	assert.Equal(t, model.RoleUser, carol.Role)
	assert.Empty(t, carol.PasswordHash)

	// The record carries the acting admin.
	records, err := store.RecordsByAsset(ctx, database, id)
	require.NoError(t, err)
	last := records[len(records)-1]
	require.NotNil(t, last.AdminID)

	assert.Contains(t, notifier.all(), "Ada Admin checked out Canon EOS for Carol New.")
}

func TestCheckinForRequiresExistingUser(t *testing.T) {
	s, _, _ := newTestService(t)
	id := createAsset(t, s, "Projector")

	_, err := s.CheckinForUser(context.Background(), id, adminEmail, UserInfo{Email: "ghost@example.com"})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAssetsListing(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	// Empty listing is a not-found, not an empty slice.
	_, err := s.Assets(ctx, "", userEmail)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Unknown category is a validation error.
	var validation *ValidationError
	_, err = s.Assets(ctx, "starship", userEmail)
	require.ErrorAs(t, err, &validation)

	createAsset(t, s, "ThinkPad")
	phoneView, err := s.Create(ctx, CreateInput{Name: "Pixel 9", Category: "phone"}, adminEmail)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, phoneView.ID, nil, userEmail)
	require.NoError(t, err)

	views, err := s.Assets(ctx, "", userEmail)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		// Condensed views omit descriptive detail.
		assert.Empty(t, v.Description)
		if v.ID == phoneView.ID {
			require.NotNil(t, v.ActiveReservation)
			assert.Equal(t, BorrowerYou, v.ActiveReservation.Borrower.Name)
		} else {
			assert.Nil(t, v.ActiveReservation)
		}
	}

	phones, err := s.Assets(ctx, "phone", userEmail)
	require.NoError(t, err)
	require.Len(t, phones, 1)
	assert.Equal(t, phoneView.ID, phones[0].ID)
}

func TestDetailsShowsBorrowerName(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Surface")

	_, err := s.Checkout(ctx, id, nil, userEmail)
	require.NoError(t, err)

	// Another user sees the borrower's real name, not the sentinel.
	view, err := s.Details(ctx, id, adminEmail)
	require.NoError(t, err)
	require.NotNil(t, view.ActiveReservation)
	assert.Equal(t, "Bob Borrower", view.ActiveReservation.Borrower.Name)
}

func TestUserReservations(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	laptop := createAsset(t, s, "XPS 13")
	tablet := createAsset(t, s, "Galaxy Tab")

	_, err := s.Checkout(ctx, laptop, nil, userEmail)
	require.NoError(t, err)
	_, err = s.Checkout(ctx, tablet, nil, userEmail)
	require.NoError(t, err)
	_, err = s.Checkin(ctx, laptop, userEmail)
	require.NoError(t, err)

	reservations, err := s.UserReservations(ctx, userEmail)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, tablet, reservations[0].Asset.ID)
	assert.Equal(t, "Galaxy Tab", reservations[0].Asset.Name)
	assert.Equal(t, model.RecordCheckedOut, reservations[0].Status)
}

func TestEditLeavesLedgerAlone(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Typo Laptop")

	_, err := s.Checkout(ctx, id, nil, userEmail)
	require.NoError(t, err)

	name := "Fixed Laptop"
	view, err := s.Edit(ctx, id, store.AssetPatch{Name: &name}, adminEmail)
	require.NoError(t, err)
	assert.Equal(t, "Fixed Laptop", view.Name)
	// Status is untouched by edits.
	assert.Equal(t, model.StatusInUse, view.State)

	history, err := s.AssetRecords(ctx, id)
	require.NoError(t, err)
	// Only created + checked_out; edits never write records.
	assert.Len(t, history.Records, 2)
}

func TestReconcileRepairsDrift(t *testing.T) {
	s, database, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Drifter")

	_, err := s.Checkout(ctx, id, nil, userEmail)
	require.NoError(t, err)

	// Corrupt the cached status behind the service's back.
	require.NoError(t, store.UpdateAssetStatus(ctx, database, id, model.StatusAvailable))

	result, err := s.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInUse, result.Status)
	assert.True(t, result.Fixed)

	// A second run finds nothing to fix.
	result, err = s.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.False(t, result.Fixed)

	view, err := s.Details(ctx, id, userEmail)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInUse, view.State)
}

func TestConcurrentCheckoutSingleWinner(t *testing.T) {
	s, database, _ := newTestService(t)
	ctx := context.Background()
	id := createAsset(t, s, "Hot Item")

	const contenders = 8
	emails := make([]string, contenders)
	for i := range emails {
		emails[i] = string(rune('a'+i)) + "@example.com"
		_, err := store.CreateUser(ctx, database, emails[i], "User", "", "", model.RoleUser)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range emails {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Checkout(ctx, id, nil, emails[i])
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, contenders-1, conflicts)

	// Exactly one checkout record made it into the ledger.
	records, err := store.RecordsByAsset(ctx, database, id)
	require.NoError(t, err)
	var checkouts int
	for _, r := range records {
		if r.Type == model.RecordCheckedOut {
			checkouts++
		}
	}
	assert.Equal(t, 1, checkouts)
}

func TestCreateValidation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	var validation *ValidationError

	_, err := s.Create(ctx, CreateInput{Category: "laptop"}, adminEmail)
	require.ErrorAs(t, err, &validation)

	_, err = s.Create(ctx, CreateInput{Name: "Thing", Category: "starship"}, adminEmail)
	require.ErrorAs(t, err, &validation)

	// Empty category falls back to misc.
	view, err := s.Create(ctx, CreateInput{Name: "Thing"}, adminEmail)
	require.NoError(t, err)
	assert.Equal(t, "misc", view.Category)
}
