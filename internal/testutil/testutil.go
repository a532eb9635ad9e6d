// Package testutil provides common test helpers for WinBackBot tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// Day is 24 hours, the unit of inactivity.
const Day = 24 * time.Hour

// FixedClock returns a time source frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SeedCustomer stores a customer whose last contact was inactive ago relative to now,
// with the given tiers already recorded.
func SeedCustomer(st *store.InMemoryStore, phone, name string, now time.Time, inactive time.Duration, tiers ...int) models.Customer {
	c := models.NewCustomer(phone, name, now.Add(-inactive))
	for _, tier := range tiers {
		c.MarkTier(tier)
	}
	st.Put(c)
	return c
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the API envelope and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Error("response missing or invalid 'status' field")
	} else if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// NewWebhookRequest builds a form-encoded Twilio inbound webhook request.
func NewWebhookRequest(from, body, profileName string) *http.Request {
	form := url.Values{}
	if from != "" {
		form.Set("From", from)
	}
	form.Set("Body", body)
	if profileName != "" {
		form.Set("ProfileName", profileName)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
