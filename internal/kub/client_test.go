package kub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func leafValue(id int, readAt string) usageValue {
	return usageValue{
		ID:           json.Number(fmt.Sprint(id)),
		ReadDateTime: readAt,
	}
}

func markerValue(readAt string) usageValue {
	return usageValue{
		ID:           json.Number("0"),
		ReadDateTime: readAt,
		Children:     []json.RawMessage{json.RawMessage(`{}`)},
	}
}

func TestReshapeUsage(t *testing.T) {
	// Marker for 2024-05-01 followed by two hourly leaves, per the provider's
	// interleaved array shape.
	values := []usageValue{
		markerValue("2024-05-01T00:00:00"),
		leafValue(101, "2024-05-01T08:00:00"),
		leafValue(102, "2024-05-01T09:00:00"),
	}
	aggregates := []usageAggregate{
		{},
		{ReadValue: 3.0, UOM: "KWH", Cost: 1.50},
		{ReadValue: 4.0, UOM: "KWH", Cost: 2.25},
	}

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	series, total, err := reshapeUsage(values, aggregates, now)
	if err != nil {
		t.Fatalf("reshapeUsage: %v", err)
	}

	day, ok := series["2024-05-01"]
	if !ok {
		t.Fatalf("expected day bucket 2024-05-01, got %v", series)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 hourly records, got %d", len(day))
	}

	eight := day["08:00:00"]
	if eight.ID != "101" || eight.UtilityUsed != 3.0 || eight.Cost != 1.50 || eight.UOM != "KWH" {
		t.Errorf("unexpected 08:00:00 record: %+v", eight)
	}
	nine := day["09:00:00"]
	if nine.UtilityUsed != 4.0 || nine.Cost != 2.25 {
		t.Errorf("unexpected 09:00:00 record: %+v", nine)
	}

	if total.Usage == nil || *total.Usage != 7.0 {
		t.Errorf("expected monthly usage 7.0, got %v", total.Usage)
	}
	if total.Cost == nil || *total.Cost != 3.75 {
		t.Errorf("expected monthly cost 3.75, got %v", total.Cost)
	}
}

func TestReshapeUsageMonthBoundary(t *testing.T) {
	// A window spanning a month boundary only counts this month's leaves in
	// the running total; the series still carries everything.
	values := []usageValue{
		markerValue("2024-04-30T00:00:00"),
		leafValue(1, "2024-04-30T08:00:00"),
		markerValue("2024-05-01T00:00:00"),
		leafValue(2, "2024-05-01T08:00:00"),
	}
	aggregates := []usageAggregate{
		{},
		{ReadValue: 10.0, Cost: 5.0},
		{},
		{ReadValue: 2.0, Cost: 1.0},
	}

	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	series, total, err := reshapeUsage(values, aggregates, now)
	if err != nil {
		t.Fatalf("reshapeUsage: %v", err)
	}

	if len(series) != 2 {
		t.Errorf("expected both day buckets, got %d", len(series))
	}
	if *total.Usage != 2.0 || *total.Cost != 1.0 {
		t.Errorf("expected totals scoped to May, got usage=%v cost=%v", *total.Usage, *total.Cost)
	}
}

func TestReshapeUsageLeafBeforeMarker(t *testing.T) {
	values := []usageValue{
		leafValue(1, "2024-05-01T08:00:00"),
		markerValue("2024-05-01T00:00:00"),
	}
	aggregates := []usageAggregate{
		{ReadValue: 1.0, Cost: 1.0},
		{},
	}

	_, _, err := reshapeUsage(values, aggregates, time.Now())
	if err == nil {
		t.Fatal("expected error for leaf preceding any day marker")
	}
}

func TestReshapeUsageMissingAggregate(t *testing.T) {
	values := []usageValue{
		markerValue("2024-05-01T00:00:00"),
		leafValue(1, "2024-05-01T08:00:00"),
	}
	aggregates := []usageAggregate{{}}

	_, _, err := reshapeUsage(values, aggregates, time.Now())
	if err == nil {
		t.Fatal("expected error for missing usage-aggregate entry")
	}
}

func TestClassifyServicePoint(t *testing.T) {
	tests := []struct {
		code string
		want []UtilityType
	}{
		{"E-RES", []UtilityType{Electricity}},
		{"G-RES", []UtilityType{Gas}},
		{"W/S-RES", []UtilityType{Water, Wastewater}},
	}
	for _, tt := range tests {
		got, err := classifyServicePoint(ServicePoint{ID: "sp", Type: tt.code})
		if err != nil {
			t.Errorf("classifyServicePoint(%q): %v", tt.code, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("classifyServicePoint(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}

	_, err := classifyServicePoint(ServicePoint{ID: "sp9", Type: "X-RES"})
	var svcErr *UnexpectedServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected UnexpectedServiceError for X-RES, got %v", err)
	}
	if svcErr.TypeCode != "X-RES" {
		t.Errorf("unexpected type code in error: %q", svcErr.TypeCode)
	}
}

// fakeProvider simulates the KUB API for full-cycle tests.
type fakeProvider struct {
	authStatus    int
	servicePoints []ServicePoint
	usageBody     string

	profileFetches int
	serviceFetches int
	usageFetches   int
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var payload map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding session payload: %v", err)
		}
		if _, ok := payload["session"]["username"]; !ok {
			t.Error("session payload missing username")
		}
		status := f.authStatus
		if status == 0 {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	})

	mux.HandleFunc("/auth/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		f.profileFetches++
		fmt.Fprint(w, `{"person": [{"id": "p-1", "accounts": ["a-1", "a-2"]}]}`)
	})

	mux.HandleFunc("/cis/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		f.serviceFetches++
		json.NewEncoder(w).Encode(map[string]any{"service-point": f.servicePoints})
	})

	mux.HandleFunc("/ami/v1/usage-values", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		f.usageFetches++
		for _, param := range []string{"startDate", "endDate", "personId", "servicePointId", "utilityType"} {
			if r.URL.Query().Get(param) == "" {
				t.Errorf("usage-values request missing %s", param)
			}
		}
		fmt.Fprint(w, f.usageBody)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func usageBodyForMonth(now time.Time) string {
	date := now.Format("2006-01-02")
	return fmt.Sprintf(`{
		"usage-value": [
			{"id": 1, "readDateTime": "%sT00:00:00", "usageValuesChildren": [{}]},
			{"id": 2, "readDateTime": "%sT00:00:00", "usageValuesChildren": []},
			{"id": 3, "readDateTime": "%sT01:00:00", "usageValuesChildren": []}
		],
		"usage-aggregate": [
			{},
			{"readValue": 2.5, "uom": "CF", "cost": 0.10},
			{"readValue": 1.5, "uom": "CF", "cost": 0.06}
		]
	}`, date, date, date)
}

func TestAuthenticationFailure(t *testing.T) {
	provider := &fakeProvider{authStatus: http.StatusUnauthorized}
	srv := provider.server(t)

	client := New("user", "wrong")
	client.BaseURL = srv.URL

	_, err := client.RetrieveLast31Days(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if provider.profileFetches != 0 {
		t.Error("profile should not be fetched after failed authentication")
	}
	if client.Account() != nil {
		t.Error("no account should be cached after failed authentication")
	}
}

func TestUnknownServiceHaltsCycle(t *testing.T) {
	provider := &fakeProvider{
		servicePoints: []ServicePoint{{ID: "sp1", Type: "X-RES"}},
	}
	srv := provider.server(t)

	client := New("user", "pass")
	client.BaseURL = srv.URL

	_, err := client.RetrieveLast31Days(context.Background())
	var svcErr *UnexpectedServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected UnexpectedServiceError, got %v", err)
	}
	if client.Account().ServicePoints != nil {
		t.Error("no service-point mapping should be committed for an unknown type")
	}
	if provider.usageFetches != 0 {
		t.Error("no usage should be fetched after service resolution fails")
	}
}

func TestRetrieveWastewaterMirrorsWater(t *testing.T) {
	provider := &fakeProvider{
		servicePoints: []ServicePoint{
			{ID: "sp-e", Type: "E-RES"},
			{ID: "sp-w", Type: "W/S-RES"},
		},
		usageBody: usageBodyForMonth(time.Now()),
	}
	srv := provider.server(t)

	client := New("user", "pass")
	client.BaseURL = srv.URL

	snap, err := client.RetrieveLast31Days(context.Background())
	if err != nil {
		t.Fatalf("RetrieveLast31Days: %v", err)
	}

	wantList := []UtilityType{Electricity, Water, Wastewater}
	if !reflect.DeepEqual(snap.ServiceList, wantList) {
		t.Fatalf("service list = %v, want %v", snap.ServiceList, wantList)
	}

	// Wastewater is derived, not fetched: electricity + water only.
	if provider.usageFetches != 2 {
		t.Errorf("expected 2 usage fetches, got %d", provider.usageFetches)
	}

	if !reflect.DeepEqual(snap.Usage[Wastewater], snap.Usage[Water]) {
		t.Error("wastewater series should deep-equal water series")
	}
	ww, w := snap.MonthlyTotal[Wastewater], snap.MonthlyTotal[Water]
	if *ww.Usage != *w.Usage || *ww.Cost != *w.Cost {
		t.Errorf("wastewater totals %v/%v should equal water totals %v/%v",
			*ww.Usage, *ww.Cost, *w.Usage, *w.Cost)
	}

	// Mirrored maps must be independent copies.
	for date := range snap.Usage[Wastewater] {
		for tm, rec := range snap.Usage[Wastewater][date] {
			rec.Cost += 1
			snap.Usage[Wastewater][date][tm] = rec
			break
		}
		break
	}
	if reflect.DeepEqual(snap.Usage[Wastewater], snap.Usage[Water]) {
		t.Error("mutating the wastewater series should not affect water")
	}
}

func TestAccountResolutionIdempotent(t *testing.T) {
	provider := &fakeProvider{
		servicePoints: []ServicePoint{{ID: "sp-e", Type: "E-RES"}},
		usageBody:     usageBodyForMonth(time.Now()),
	}
	srv := provider.server(t)

	client := New("user", "pass")
	client.BaseURL = srv.URL

	ctx := context.Background()
	if _, err := client.RetrieveLast31Days(ctx); err != nil {
		t.Fatalf("first retrieve: %v", err)
	}
	if _, err := client.RetrieveLast31Days(ctx); err != nil {
		t.Fatalf("second retrieve: %v", err)
	}

	if provider.profileFetches != 1 {
		t.Errorf("profile should be fetched once, got %d", provider.profileFetches)
	}
	// Services may legitimately change, so they re-resolve every cycle.
	if provider.serviceFetches != 2 {
		t.Errorf("services should be re-resolved each cycle, got %d fetches", provider.serviceFetches)
	}

	account := client.Account()
	if account.PersonID != "p-1" || account.AccountID != "a-1" {
		t.Errorf("unexpected account: %+v", account)
	}
}

func TestVerifyAccess(t *testing.T) {
	provider := &fakeProvider{}
	srv := provider.server(t)

	client := New("user", "pass")
	client.BaseURL = srv.URL

	if err := client.VerifyAccess(context.Background()); err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if provider.profileFetches != 0 {
		t.Error("VerifyAccess should only authenticate")
	}
}

func TestSessionActive(t *testing.T) {
	s := &session{}
	if s.Active() {
		t.Error("session should not be active before authentication")
	}
	s.started = time.Now()
	if !s.Active() {
		t.Error("freshly authenticated session should be active")
	}
	s.started = time.Now().Add(-16 * time.Minute)
	if s.Active() {
		t.Error("session older than the TTL should not be active")
	}
}
