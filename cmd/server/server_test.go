package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/recon/internal/accounts"
	"github.com/liamcoop/recon/internal/config"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/rules"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return NewServer(a.svc, ServerOptions{
		RequestTimeout: 10 * time.Second,
		MetricsPath:    cfg.Metrics.Path,
	})
}

func do(t *testing.T, srv http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func login(t *testing.T, srv http.Handler, email string) string {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: email, Password: accounts.DemoPassword})
	if rr.Code != http.StatusOK {
		t.Fatalf("login as %s: status %d: %s", email, rr.Code, rr.Body.String())
	}
	var resp LoginResponse
	decode(t, rr, &resp)
	return resp.Token
}

const (
	adminEmail   = "admin@recon.local"
	analystEmail = "analyst@recon.local"
	viewerEmail  = "viewer@recon.local"
)

var amountRuleBody = map[string]any{
	"id":   "amount-only",
	"name": "Amount only",
	"conditions": []map[string]any{
		{"field": "amount", "operator": "equals", "value": "target.amount"},
	},
}

const amountTestData = `{"testData": [
	{"id": "ok", "source": {"amount": "100.00"}, "target": {"amount": 100}},
	{"id": "bad", "source": {"amount": "100.00"}, "target": {"amount": "99.50"}}
]}`

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "healthy" || resp.RuleStore != "memory" || resp.ActiveRules != len(demoRules()) {
		t.Errorf("health = %+v", resp)
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: adminEmail, Password: "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/api/v1/auth/login", "", `{"email": ""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty credentials status = %d, want 400", rr.Code)
	}

	token := login(t, srv, analystEmail)
	rr = do(t, srv, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d", rr.Code)
	}
	var me MeResponse
	decode(t, rr, &me)
	if me.User.Email != analystEmail || len(me.Capabilities) == 0 {
		t.Errorf("me = %+v", me)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Errorf("logout status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/auth/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", rr.Code)
	}
}

func TestNavigationByRole(t *testing.T) {
	srv := newTestServer(t)

	ids := func(email string) map[string]bool {
		rr := do(t, srv, http.MethodGet, "/api/v1/navigation", login(t, srv, email), nil)
		var resp struct {
			Items []struct{ ID string } `json:"items"`
		}
		decode(t, rr, &resp)
		out := make(map[string]bool)
		for _, item := range resp.Items {
			out[item.ID] = true
		}
		return out
	}

	if nav := ids(viewerEmail); nav["users"] || !nav["dashboard"] {
		t.Errorf("viewer navigation = %v", nav)
	}
	if nav := ids(adminEmail); !nav["users"] || !nav["audit"] {
		t.Errorf("admin navigation = %v", nav)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/navigation", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous navigation status = %d", rr.Code)
	}
}

func TestAuthorization(t *testing.T) {
	srv := newTestServer(t)
	viewer := login(t, srv, viewerEmail)

	tests := []struct {
		name, method, path, token string
		want                      int
	}{
		{"anonymous rules", http.MethodGet, "/api/v1/rules", "", http.StatusUnauthorized},
		{"viewer lists rules", http.MethodGet, "/api/v1/rules", viewer, http.StatusOK},
		{"viewer cannot create rules", http.MethodPost, "/api/v1/rules", viewer, http.StatusForbidden},
		{"viewer cannot test rules", http.MethodPost, "/api/v1/rules/amount-match/test", viewer, http.StatusForbidden},
		{"viewer cannot list users", http.MethodGet, "/api/v1/users", viewer, http.StatusForbidden},
		{"viewer cannot read run history", http.MethodGet, "/api/v1/audit/runs", viewer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, srv, tt.method, tt.path, tt.token, amountRuleBody); rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestRuleTestEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, analystEmail)

	rr := do(t, srv, http.MethodPost, "/api/v1/rules", token, amountRuleBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	var created rules.RuleDefinition
	decode(t, rr, &created)
	if created.Status != rules.StatusDraft || created.Version != rules.InitialVersion {
		t.Errorf("created = %+v", created)
	}

	// Draft rules can be tested before activation.
	rr = do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/test", token, amountTestData)
	if rr.Code != http.StatusOK {
		t.Fatalf("test status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp TestRuleResponse
	decode(t, rr, &resp)

	if resp.Passed || resp.TotalRecords != 2 || resp.PassedRecords != 1 || resp.FailedRecords != 1 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v, want one failed result", resp.Errors)
	}
	failed := resp.Errors[0]
	if failed.RecordID != "bad" || failed.ExceptionType != rules.ExceptionAmountMismatch ||
		len(failed.FailedConditions) != 1 || failed.FailedConditions[0] != 0 {
		t.Errorf("failed result = %+v", failed)
	}

	rr = do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/test", token, `{"testData": []}`)
	decode(t, rr, &resp)
	if rr.Code != http.StatusOK || !resp.Passed || resp.TotalRecords != 0 || resp.Errors == nil {
		t.Errorf("empty batch = %d %+v", rr.Code, resp)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/rules/missing/test", token, amountTestData); rr.Code != http.StatusNotFound {
		t.Errorf("unknown rule status = %d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/test", token, `{"testData": `); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, analystEmail)

	rr := do(t, srv, http.MethodPost, "/api/v1/rules", token, map[string]any{"id": "empty", "name": "No conditions"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" || !strings.Contains(resp["details"], "conditions") {
		t.Errorf("error body = %v", resp)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", token, amountRuleBody); rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules", token, amountRuleBody); rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rr.Code)
	}
}

func TestRuleVersionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, analystEmail)

	do(t, srv, http.MethodPost, "/api/v1/rules", token, amountRuleBody)
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/activate", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("activate status = %d: %s", rr.Code, rr.Body.String())
	}

	rr := do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/versions", token, NewVersionRequest{Name: "Amount v2"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("new version status = %d: %s", rr.Code, rr.Body.String())
	}
	var v2 rules.RuleDefinition
	decode(t, rr, &v2)
	if v2.Version != "1.1.0" || v2.Status != rules.StatusDraft {
		t.Errorf("v2 = %+v", v2)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/versions/1.1.0/activate", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("activate v2 status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/rules/amount-only/versions", token, nil)
	var versions RuleVersionsResponse
	decode(t, rr, &versions)
	if len(versions.Versions) != 2 {
		t.Fatalf("versions = %+v", versions)
	}
	if versions.Versions[0].Status != rules.StatusInactive || versions.Versions[1].Status != rules.StatusActive {
		t.Errorf("statuses = %s, %s", versions.Versions[0].Status, versions.Versions[1].Status)
	}

	if rr := do(t, srv, http.MethodGet, "/api/v1/rules/amount-only/versions/9.9.9", token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing version status = %d, want 404", rr.Code)
	}
}

func TestRunQueuesExceptionsAndRecordsRun(t *testing.T) {
	srv := newTestServer(t)
	analyst := login(t, srv, analystEmail)
	amountRule := map[string]any{}
	for k, v := range amountRuleBody {
		amountRule[k] = v
	}
	amountRule["status"] = "active"
	do(t, srv, http.MethodPost, "/api/v1/rules", analyst, amountRule)

	rr := do(t, srv, http.MethodPost, "/api/v1/rules/amount-only/run", analyst, amountTestData)
	if rr.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rr.Code, rr.Body.String())
	}
	var result rules.BatchRunResult
	decode(t, rr, &result)
	if result.FailedRecords != 1 || len(result.Results) != 2 || result.Results[0].RecordID != "ok" {
		t.Errorf("result = %+v", result)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/exceptions?ruleId=amount-only", analyst, nil)
	var page exceptions.Page
	decode(t, rr, &page)
	if page.Total != 1 || page.Items[0].RecordID != "bad" || page.Items[0].Status != exceptions.StatusOpen {
		t.Fatalf("exceptions = %+v", page)
	}

	// The run is recorded asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	var runs struct {
		Runs []struct {
			RuleID        string `json:"ruleId"`
			FailedRecords int    `json:"failedRecords"`
		} `json:"runs"`
	}
	for {
		rr = do(t, srv, http.MethodGet, "/api/v1/audit/runs?ruleId=amount-only", analyst, nil)
		decode(t, rr, &runs)
		if len(runs.Runs) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(runs.Runs) != 1 || runs.Runs[0].FailedRecords != 1 {
		t.Errorf("runs = %+v", runs)
	}

	// Running a draft rule is refused.
	do(t, srv, http.MethodPost, "/api/v1/rules", analyst, map[string]any{
		"id": "draft", "name": "Draft",
		"conditions": []map[string]any{{"field": "a", "operator": "equals", "value": "1"}},
	})
	if rr := do(t, srv, http.MethodPost, "/api/v1/rules/draft/run", analyst, amountTestData); rr.Code != http.StatusNotFound {
		t.Errorf("run draft status = %d, want 404", rr.Code)
	}
}

func TestExceptionWorkflow(t *testing.T) {
	srv := newTestServer(t)
	analyst := login(t, srv, analystEmail)

	rr := do(t, srv, http.MethodGet, "/api/v1/exceptions?status=open", analyst, nil)
	var page exceptions.Page
	decode(t, rr, &page)
	if page.Total == 0 {
		t.Fatal("no seeded open exceptions")
	}
	id := page.Items[0].ID
	base := "/api/v1/exceptions/" + id

	if rr := do(t, srv, http.MethodPost, base+"/assign", analyst, AssignRequest{Assignee: analystEmail}); rr.Code != http.StatusOK {
		t.Errorf("assign status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPatch, base+"/status", analyst, StatusRequest{Status: "investigating"}); rr.Code != http.StatusOK {
		t.Errorf("status update = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPatch, base+"/status", analyst, StatusRequest{Status: "bogus"}); rr.Code != http.StatusBadRequest {
		t.Errorf("bogus status = %d, want 400", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, base+"/resolve", analyst, ResolveRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("resolve without note = %d, want 400", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, base+"/resolve", analyst, ResolveRequest{Note: "Booked fee"})
	if rr.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rr.Code, rr.Body.String())
	}
	var resolved exceptions.Exception
	decode(t, rr, &resolved)
	if resolved.Status != exceptions.StatusResolved || resolved.ResolvedBy != analystEmail {
		t.Errorf("resolved = %+v", resolved)
	}

	if rr := do(t, srv, http.MethodPatch, base+"/status", analyst, StatusRequest{Status: "open"}); rr.Code != http.StatusConflict {
		t.Errorf("reopen status = %d, want 409", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/exceptions?page=x", analyst, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad page status = %d, want 400", rr.Code)
	}

	viewer := login(t, srv, viewerEmail)
	if rr := do(t, srv, http.MethodPost, base+"/assign", viewer, AssignRequest{Assignee: "x"}); rr.Code != http.StatusForbidden {
		t.Errorf("viewer assign status = %d, want 403", rr.Code)
	}
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t)
	viewer := login(t, srv, viewerEmail)

	rr := do(t, srv, http.MethodGet, "/api/v1/dashboard/kpis", viewer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("kpis status = %d", rr.Code)
	}
	var kpis struct {
		MatchRate        float64 `json:"matchRate"`
		OpenExceptions   int     `json:"openExceptions"`
		ActiveRules      int     `json:"activeRules"`
		ConnectedSources int     `json:"connectedSources"`
	}
	decode(t, rr, &kpis)
	if kpis.MatchRate <= 0 || kpis.OpenExceptions == 0 || kpis.ActiveRules != len(demoRules()) || kpis.ConnectedSources == 0 {
		t.Errorf("kpis = %+v", kpis)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/dashboard/trends?days=14", viewer, nil)
	var trends struct {
		Points []struct{ Date string } `json:"points"`
	}
	decode(t, rr, &trends)
	if len(trends.Points) != 14 {
		t.Errorf("trend points = %d, want 14", len(trends.Points))
	}
}

func TestTemplates(t *testing.T) {
	srv := newTestServer(t)
	analyst := login(t, srv, analystEmail)

	rr := do(t, srv, http.MethodGet, "/api/v1/templates?category=banking", analyst, nil)
	var list struct {
		Templates []rules.TemplateDefinition `json:"templates"`
	}
	decode(t, rr, &list)
	if len(list.Templates) != 2 {
		t.Errorf("banking templates = %d, want 2", len(list.Templates))
	}

	rr = do(t, srv, http.MethodPost, "/api/v1/templates/tpl-bank-exact/instantiate", analyst, map[string]string{"ruleId": "from-template"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("instantiate status = %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/rules/from-template", analyst, nil); rr.Code != http.StatusOK {
		t.Errorf("instantiated rule not found: %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/templates/missing", analyst, nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing template status = %d", rr.Code)
	}
}

func TestConnectors(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, adminEmail)
	analyst := login(t, srv, analystEmail)

	body := map[string]any{
		"name":     "Payroll export",
		"type":     "csv",
		"settings": map[string]string{"path": "/data/payroll.csv"},
	}
	if rr := do(t, srv, http.MethodPost, "/api/v1/connectors", analyst, body); rr.Code != http.StatusForbidden {
		t.Errorf("analyst create status = %d, want 403", rr.Code)
	}

	rr := do(t, srv, http.MethodPost, "/api/v1/connectors", admin, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	var c struct {
		ID string `json:"id"`
	}
	decode(t, rr, &c)

	if rr := do(t, srv, http.MethodPost, "/api/v1/connectors/"+c.ID+"/test", admin, nil); rr.Code != http.StatusOK {
		t.Errorf("test status = %d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/api/v1/connectors/"+c.ID+"/sync", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/connectors?type=csv", analyst, nil)
	var list struct {
		Connectors []struct {
			ID          string `json:"id"`
			RecordCount int64  `json:"recordCount"`
		} `json:"connectors"`
	}
	decode(t, rr, &list)
	if len(list.Connectors) != 2 {
		t.Errorf("csv connectors = %d, want 2", len(list.Connectors))
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/connectors", admin, map[string]string{"name": "x", "type": "ftp"}); rr.Code != http.StatusBadRequest {
		t.Errorf("bad type status = %d, want 400", rr.Code)
	}
}

func TestInvitations(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, adminEmail)

	rr := do(t, srv, http.MethodPost, "/api/v1/users/invitations", admin, InviteRequest{Email: "new@recon.local", Role: "viewer"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("invite status = %d: %s", rr.Code, rr.Body.String())
	}
	var inv accounts.Invitation
	decode(t, rr, &inv)
	if inv.InvitedBy != adminEmail {
		t.Errorf("InvitedBy = %q", inv.InvitedBy)
	}

	rr = do(t, srv, http.MethodPost, "/api/v1/invitations/"+inv.ID+"/accept", "", AcceptInvitationRequest{Name: "New", Password: "pw"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("accept status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "new@recon.local", Password: "pw"})
	if rr.Code != http.StatusOK {
		t.Errorf("login as invited user = %d", rr.Code)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/users/invitations", admin, InviteRequest{Email: "x@recon.local", Role: "root"}); rr.Code != http.StatusBadRequest {
		t.Errorf("bad role status = %d, want 400", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/v1/health", "", nil)

	rr := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Error("metrics output lacks http_requests_total")
	}
}
