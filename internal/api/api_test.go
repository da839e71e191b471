package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pointsource/checkit/internal/asset"
	"github.com/pointsource/checkit/internal/auth"
	"github.com/pointsource/checkit/internal/db"
	"github.com/pointsource/checkit/internal/model"
	"github.com/pointsource/checkit/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB, string) {
	t.Helper()
	database := db.NewTestDB(t)
	service := asset.NewService(database, nil)
	router := NewRouter(database, testJWTSecret, service)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin@example.com", "Ada", "Admin", string(hash), model.RoleAdmin)

	// Get token.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}

	return server, database, token
}

func userToken(t *testing.T, database *sql.DB, email string) string {
	t.Helper()
	user, err := store.CreateUser(context.Background(), database, email, "Bob", "Borrower", "", model.RoleUser)
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	token, err := auth.GenerateToken(testJWTSecret, user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func createTestAsset(t *testing.T, server *httptest.Server, token, name string) int64 {
	t.Helper()
	req, _ := authRequest("POST", server.URL+"/api/assets", token, map[string]string{
		"name":     name,
		"category": "laptop",
	})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create asset request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var view asset.View
	json.NewDecoder(resp.Body).Decode(&view)
	if view.ID == 0 {
		t.Fatal("expected non-zero asset id")
	}
	return view.ID
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/assets")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, database, _ := setupTestServer(t)
	token := userToken(t, database, "bob@example.com")

	// Regular user should not be able to create assets.
	req, _ := authRequest("POST", server.URL+"/api/assets", token, map[string]string{
		"name": "Test",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user creating asset, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Regular user should not access /api/users.
	req, _ = authRequest("GET", server.URL+"/api/users", token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEmptyListingIsNotFound(t *testing.T) {
	server, _, token := setupTestServer(t)

	req, _ := authRequest("GET", server.URL+"/api/assets", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for empty listing, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAssetLifecycleFlow(t *testing.T) {
	server, database, adminToken := setupTestServer(t)
	bobToken := userToken(t, database, "bob@example.com")
	id := createTestAsset(t, server, adminToken, "MacBook Pro")
	url := server.URL + "/api/assets/" + itoa(id)

	// Bob checks the asset out.
	req, _ := authRequest("POST", url+"/checkout", bobToken, map[string]any{})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for checkout, got %d", resp.StatusCode)
	}
	var view asset.View
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.State != model.StatusInUse {
		t.Errorf("expected state in_use, got %q", view.State)
	}
	if view.ActiveReservation == nil {
		t.Fatal("expected active reservation after checkout")
	}

	// A second checkout is a retryable conflict, not a failure or a 404.
	req, _ = authRequest("POST", url+"/checkout", adminToken, map[string]any{})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for conflicting checkout, got %d", resp.StatusCode)
	}
	var conflict struct {
		Message string      `json:"message"`
		Asset   *asset.View `json:"asset"`
	}
	json.NewDecoder(resp.Body).Decode(&conflict)
	resp.Body.Close()
	if conflict.Message != "Processing not completed. Someone else is currently processing this asset." {
		t.Errorf("unexpected conflict message: %q", conflict.Message)
	}
	if conflict.Asset == nil || conflict.Asset.State != model.StatusInUse {
		t.Errorf("expected current asset view in conflict response, got %v", conflict.Asset)
	}

	// Bob's reservations show the loan.
	req, _ = authRequest("GET", server.URL+"/api/users/me/reservations", bobToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for reservations, got %d", resp.StatusCode)
	}
	var reservations []asset.UserReservation
	json.NewDecoder(resp.Body).Decode(&reservations)
	resp.Body.Close()
	if len(reservations) != 1 || reservations[0].Asset.ID != id {
		t.Errorf("expected 1 reservation for asset %d, got %v", id, reservations)
	}

	// Bob checks the asset back in.
	req, _ = authRequest("POST", url+"/checkin", bobToken, map[string]any{})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for checkin, got %d", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.State != model.StatusAvailable {
		t.Errorf("expected state available, got %q", view.State)
	}

	// The ledger shows the full history with a checkout count.
	req, _ = authRequest("GET", url+"/records", bobToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for records, got %d", resp.StatusCode)
	}
	var history asset.History
	json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if history.AmountCheckedOut != 1 {
		t.Errorf("expected 1 checkout, got %d", history.AmountCheckedOut)
	}
	if len(history.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(history.Records))
	}
}

func TestCheckoutForFlow(t *testing.T) {
	server, _, adminToken := setupTestServer(t)
	id := createTestAsset(t, server, adminToken, "Loaner Phone")
	url := server.URL + "/api/assets/" + itoa(id)

	// Admin checks out on behalf of a previously unknown user.
	req, _ := authRequest("POST", url+"/checkout-for", adminToken, map[string]any{
		"user_info": map[string]string{
			"email":      "carol@example.com",
			"first_name": "Carol",
			"last_name":  "New",
		},
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for checkout-for, got %d", resp.StatusCode)
	}
	var view asset.View
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.ActiveReservation == nil || view.ActiveReservation.Borrower.Name != "Carol New" {
		t.Errorf("expected Carol New as borrower, got %v", view.ActiveReservation)
	}

	// The created user appears in the directory.
	req, _ = authRequest("GET", server.URL+"/api/users", adminToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	var users []model.User
	json.NewDecoder(resp.Body).Decode(&users)
	resp.Body.Close()
	found := false
	for _, u := range users {
		if u.Email == "carol@example.com" {
			found = true
		}
	}
	if !found {
		t.Error("expected carol@example.com in user directory")
	}

	// Admin checks the asset back in for Carol.
	req, _ = authRequest("POST", url+"/checkin-for", adminToken, map[string]any{
		"user_info": map[string]string{"email": "carol@example.com"},
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for checkin-for, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRemoveAndReconcile(t *testing.T) {
	server, _, adminToken := setupTestServer(t)
	id := createTestAsset(t, server, adminToken, "Doomed Tablet")
	url := server.URL + "/api/assets/" + itoa(id)

	req, _ := authRequest("DELETE", url, adminToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for remove, got %d", resp.StatusCode)
	}
	var view asset.View
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.State != model.StatusRetired {
		t.Errorf("expected state retired, got %q", view.State)
	}

	// Reconcile agrees with the cached status.
	req, _ = authRequest("POST", url+"/reconcile", adminToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for reconcile, got %d", resp.StatusCode)
	}
	var result asset.ReconcileResult
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if result.Status != model.StatusRetired || result.Fixed {
		t.Errorf("expected retired and no fix, got %+v", result)
	}
}

func TestGetUnknownAsset(t *testing.T) {
	server, _, token := setupTestServer(t)

	req, _ := authRequest("GET", server.URL+"/api/assets/9999", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown asset, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
