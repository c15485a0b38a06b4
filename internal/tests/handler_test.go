package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ridecore/internal/app"
	"ridecore/internal/connectivity"
	"ridecore/internal/domain"
	"ridecore/internal/handler"
	"ridecore/internal/service"
)

const testAdminToken = "s3cret"

type okProber struct{}

func (okProber) Probe(ctx context.Context) error { return nil }

type apiHarness struct {
	*paymentHarness
	cache  *MockResponseCache
	router *gin.Engine
}

func newAPIHarness(t *testing.T, adminToken string) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ph := newPaymentHarness(t)
	log := NewTestLogger()
	executor := NewTestExecutor()

	verifications := service.NewVerificationService(NewMockVerificationRepository(), executor, 15*time.Minute, log)
	settings := service.NewSettingsService(NewMockSettingsRepository(), executor)
	audit := service.NewAuditService(ph.wallets, executor, log)
	monitor := connectivity.NewMonitor(nil, okProber{}, connectivity.Config{}, log)
	cache := NewMockResponseCache()

	router := app.NewRouter(app.RouterDeps{
		RideHandler:         handler.NewRideHandler(ph.rideService),
		DriverHandler:       handler.NewDriverHandler(service.NewDriverService(ph.drivers, executor), ph.rideService),
		WalletHandler:       handler.NewWalletHandler(ph.walletService),
		PaymentHandler:      handler.NewPaymentHandler(ph.paymentService),
		VerificationHandler: handler.NewVerificationHandler(verifications),
		SettingsHandler:     handler.NewSettingsHandler(settings),
		ConnectivityHandler: handler.NewConnectivityHandler(monitor),
		AdminHandler:        handler.NewAdminHandler(ph.walletService, audit, ph.settlementService, ph.reconciliation),
		ResponseCache:       cache,
		AdminToken:          adminToken,
		Log:                 log,
	})

	return &apiHarness{paymentHarness: ph, cache: cache, router: router}
}

func (a *apiHarness) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestAPI_VerificationRequestConflictContract(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)

	w := api.do(http.MethodPost, "/v1/verification-requests", map[string]any{"user_id": "u1"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)["id"]

	w = api.do(http.MethodPost, "/v1/verification-requests", map[string]any{"user_id": "u1"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["existing_id"] != first {
		t.Errorf("expected existing_id %v, got %v", first, body["existing_id"])
	}
	if body["error"] == "" {
		t.Error("expected an error message")
	}

	w = api.do(http.MethodPost, "/v1/verification-requests", map[string]any{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing user, got %d", w.Code)
	}

	w = api.do(http.MethodPost, "/v1/verification-requests", map[string]any{"user_id": "u2", "expires_minutes": 200000000}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an oversized expiry, got %d", w.Code)
	}
}

func TestAPI_RideErrorsMapToStatusCodes(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)

	w := api.do(http.MethodPost, "/v1/rides", map[string]any{"passenger_id": passengerID, "fare_estimated": "1000"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rideID := decodeBody(t, w)["id"].(string)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown ride", http.MethodGet, "/v1/rides/missing", nil, http.StatusNotFound},
		{"bad payment method", http.MethodPost, "/v1/rides", map[string]any{"passenger_id": "p", "payment_method": "gold"}, http.StatusBadRequest},
		{"unassigned driver", http.MethodPost, "/v1/rides/" + rideID + "/start", map[string]any{"driver_id": driverID}, http.StatusForbidden},
		{"stranger cancels", http.MethodPost, "/v1/rides/" + rideID + "/cancel", map[string]any{"cancelled_by": "x"}, http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if w := api.do(tc.method, tc.path, tc.body, nil); w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	w = api.do(http.MethodPost, "/v1/rides/"+rideID+"/cancel", map[string]any{"cancelled_by": passengerID}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = api.do(http.MethodPost, "/v1/rides/"+rideID+"/cancel", map[string]any{"cancelled_by": passengerID}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a terminal ride, got %d", w.Code)
	}
}

func TestAPI_CompletionReportsSettlementError(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)
	ride := api.storedRide("ride-poor", domain.PaymentMethodWallet, "1500")
	api.wallets.Fund(passengerID, dec("1000"))

	w := api.do(http.MethodPost, "/v1/rides/"+ride.ID+"/complete", map[string]any{"driver_id": driverID, "actual_fare": "1500"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != string(domain.RideStatusCompleted) {
		t.Errorf("expected completed, got %v", body["status"])
	}
	if body["settlement_status"] != string(domain.SettlementReconciliationRequired) {
		t.Errorf("expected reconciliation_required, got %v", body["settlement_status"])
	}
	if body["settlement_error"] == nil {
		t.Error("expected settlement_error to be reported")
	}
}

func TestAPI_WithdrawalBeyondBalanceIs402(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)
	api.wallets.Fund("user-1", dec("100"))

	w := api.do(http.MethodPost, "/v1/wallets/user-1/withdrawals", map[string]any{"amount": "150"}, nil)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPI_IdempotencyKeyReplaysResponse(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)
	headers := map[string]string{"Idempotency-Key": "create-1"}
	body := map[string]any{"passenger_id": passengerID}

	first := api.do(http.MethodPost, "/v1/rides", body, headers)
	second := api.do(http.MethodPost, "/v1/rides", body, headers)

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if decodeBody(t, first)["id"] != decodeBody(t, second)["id"] {
		t.Error("expected the replayed response to carry the same ride")
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay header on the second response")
	}
}

func TestAPI_IdempotencyKeyInFlightIs409(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)
	api.cache.MarkInFlight(http.MethodPost + ":/v1/rides:busy-key")

	w := api.do(http.MethodPost, "/v1/rides", map[string]any{"passenger_id": passengerID}, map[string]string{"Idempotency-Key": "busy-key"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestAPI_AdminRoutesRequireToken(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)

	if w := api.do(http.MethodPost, "/v1/admin/ledger/audit", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	w := api.do(http.MethodPost, "/v1/admin/ledger/audit", nil, map[string]string{"X-Admin-Token": testAdminToken})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", w.Code, w.Body.String())
	}

	disabled := newAPIHarness(t, "")
	if w := disabled.do(http.MethodPost, "/v1/admin/ledger/audit", nil, map[string]string{"X-Admin-Token": ""}); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 when admin access is disabled, got %d", w.Code)
	}
}

func TestAPI_ScheduleSettingsRoundTrip(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)
	admin := map[string]string{"X-Admin-Token": testAdminToken}

	w := api.do(http.MethodGet, "/v1/settings/schedule", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["mode"] != string(domain.ScheduleModeScheduled) {
		t.Errorf("expected default mode, got %s", w.Body.String())
	}

	w = api.do(http.MethodPut, "/v1/admin/settings/schedule", map[string]any{"mode": "manual", "interval_minutes": 60}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = api.do(http.MethodGet, "/v1/settings/schedule", nil, nil)
	if decodeBody(t, w)["mode"] != "manual" {
		t.Errorf("expected manual mode, got %s", w.Body.String())
	}
}

func TestAPI_ConnectivityStartsOnline(t *testing.T) {
	api := newAPIHarness(t, testAdminToken)

	w := api.do(http.MethodGet, "/v1/health/connectivity", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
