package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/svdesai/fraudscope/internal/config"
	"github.com/svdesai/fraudscope/internal/fraud"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		HighValueThreshold:   1_000_000,
		VelocityCount:        3,
		VelocityWindowMin:    10,
		GeoDistanceKM:        500,
		WindowCapacity:       10,
		SuspiciousCategories: []string{"Gambling", "Crypto"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	s.MarkReady()
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.Router().ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if w := doJSON(s, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}
	if w := doJSON(s, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", w.Code)
	}
}

func TestReadyzBeforeReplay(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if w := doJSON(s, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before replay = %d, want 503", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Transaction intake
// ---------------------------------------------------------------------------

func TestIngestBeforeReplay(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	// Intake is closed until the startup replay has warmed the windows;
	// letting a transaction through would have it scored by both paths.
	w := doJSON(s, "POST", "/v1/transactions",
		`{"txnId":"t1","accountId":"acct-1","amount":10}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ingest before replay = %d, want 503", w.Code)
	}

	s.MarkReady()
	if w := doJSON(s, "POST", "/v1/transactions",
		`{"txnId":"t1","accountId":"acct-1","amount":10}`); w.Code != http.StatusCreated {
		t.Errorf("ingest after replay = %d, want 201", w.Code)
	}
}

func TestIngestHighValueTransaction(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/transactions",
		`{"txnId":"t1","accountId":"acct-1","amount":2000000,"deviceId":"dev-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Transaction fraud.Transaction `json:"transaction"`
		Alerts      []*fraud.Alert    `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.ID != "t1" {
		t.Errorf("transaction id = %s", resp.Transaction.ID)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].RuleID != fraud.RuleHighValue {
		t.Fatalf("expected one HIGH_VALUE alert, got %v", resp.Alerts)
	}
}

func TestIngestGeneratesTxnID(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/transactions", `{"accountId":"acct-1","amount":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Transaction fraud.Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.Transaction.ID, "txn_") {
		t.Errorf("expected generated txn id, got %q", resp.Transaction.ID)
	}
	if resp.Transaction.Timestamp.IsZero() {
		t.Error("expected server-side timestamp")
	}
}

func TestIngestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"accountId":`},
		{"missing account", `{"amount":10}`},
		{"negative amount", `{"accountId":"a","amount":-5}`},
		{"half geo pair", `{"accountId":"a","amount":10,"geoLat":12.9}`},
		{"latitude out of range", `{"accountId":"a","amount":10,"geoLat":99.0,"geoLng":77.5}`},
	}

	for _, tt := range tests {
		if w := doJSON(s, "POST", "/v1/transactions", tt.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, w.Code)
		}
	}
}

func TestIngestDuplicateTxnDoesNotReAlert(t *testing.T) {
	s := newTestServer(t)
	body := `{"txnId":"t1","accountId":"acct-1","amount":2000000}`

	first := doJSON(s, "POST", "/v1/transactions", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first ingest = %d", first.Code)
	}

	second := doJSON(s, "POST", "/v1/transactions", body)
	if second.Code != http.StatusCreated {
		t.Fatalf("second ingest = %d", second.Code)
	}
	var resp struct {
		Alerts []*fraud.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Alerts) != 0 {
		t.Errorf("replayed txn raised %d alerts, want 0", len(resp.Alerts))
	}
}

// ---------------------------------------------------------------------------
// Alerts API
// ---------------------------------------------------------------------------

func ingestBurst(t *testing.T, s *Server) {
	t.Helper()
	for i := 0; i < 4; i++ {
		body := fmt.Sprintf(
			`{"txnId":"t%d","accountId":"acct-1","amount":10,"timestamp":"2026-08-01T12:0%d:00Z"}`,
			i, i)
		if w := doJSON(s, "POST", "/v1/transactions", body); w.Code != http.StatusCreated {
			t.Fatalf("ingest t%d = %d", i, w.Code)
		}
	}
}

func TestListAlerts(t *testing.T) {
	s := newTestServer(t)
	ingestBurst(t, s) // fourth txn trips velocity

	w := doJSON(s, "GET", "/v1/alerts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Alerts []*fraud.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Alerts[0].RuleID != fraud.RuleVelocity {
		t.Errorf("expected one VELOCITY alert, got %+v", resp.Alerts)
	}
}

func TestListAccountAlerts(t *testing.T) {
	s := newTestServer(t)
	ingestBurst(t, s)

	w := doJSON(s, "GET", "/v1/accounts/acct-1/alerts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), fraud.RuleVelocity) {
		t.Errorf("expected velocity alert in body: %s", w.Body.String())
	}

	w = doJSON(s, "GET", "/v1/accounts/acct-other/alerts", "")
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("other account has %d alerts, want 0", resp.Count)
	}
}

func TestAlertSummary(t *testing.T) {
	s := newTestServer(t)
	ingestBurst(t, s)

	w := doJSON(s, "GET", "/v1/alerts/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Rules []fraud.RuleCount `json:"rules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].RuleID != fraud.RuleVelocity || resp.Rules[0].Count != 1 {
		t.Errorf("unexpected summary: %+v", resp.Rules)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	s := newTestServer(t)
	ingestBurst(t, s)

	var listResp struct {
		Alerts []*fraud.Alert `json:"alerts"`
	}
	w := doJSON(s, "GET", "/v1/alerts", "")
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil || len(listResp.Alerts) == 0 {
		t.Fatalf("no alert to acknowledge: %v", err)
	}

	id := listResp.Alerts[0].ID
	if w := doJSON(s, "POST", "/v1/alerts/"+id+"/ack", ""); w.Code != http.StatusOK {
		t.Errorf("ack = %d", w.Code)
	}

	w = doJSON(s, "GET", "/v1/alerts", "")
	if !strings.Contains(w.Body.String(), fraud.StatusAcknowledged) {
		t.Error("alert not acknowledged in listing")
	}

	if w := doJSON(s, "POST", "/v1/alerts/nope/ack", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown alert ack = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Rescore
// ---------------------------------------------------------------------------

func TestRescore(t *testing.T) {
	s := newTestServer(t)
	ingestBurst(t, s)

	w := doJSON(s, "POST", "/v1/rescore", "")
	if w.Code != http.StatusOK {
		t.Fatalf("rescore = %d, body = %s", w.Code, w.Body.String())
	}
	var result fraud.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Processed != 4 {
		t.Errorf("processed = %d, want 4", result.Processed)
	}
	if result.Alerts != 0 || result.Duplicates != 1 {
		t.Errorf("alerts=%d duplicates=%d, want 0/1", result.Alerts, result.Duplicates)
	}

	if w := doJSON(s, "POST", "/v1/rescore?since=not-a-time", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad since = %d, want 400", w.Code)
	}
}
