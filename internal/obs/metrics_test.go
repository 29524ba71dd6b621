package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/v1/polls/abc":                    "/v1/polls/:id",
		"/v1/polls/abc/comments":           "/v1/polls/:id/comments",
		"/v1/polls/abc/comments?limit=10":  "/v1/polls/:id/comments",
		"/v1/polls/abc/extra":              "/v1/polls/abc/extra",
		"/v1/comments/c1":                  "/v1/comments/:id",
		"/v1/comments/c1/moderation":       "/v1/comments/:id/moderation",
		"/v1/identities/u1/suspension":     "/v1/identities/:id/suspension",
		"/v1/moderation/queue":             "/v1/moderation/queue",
		"/v1/identities/u1/role/something": "/v1/identities/u1/role/something",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestRecordDecisionLabelsDenialsByReason(t *testing.T) {
	before := testutil.ToFloat64(authzDecisions.WithLabelValues("edit", "not-owner"))
	RecordDecision("edit", false, "not-owner")
	RecordDecision("edit", true, "")
	after := testutil.ToFloat64(authzDecisions.WithLabelValues("edit", "not-owner"))
	if after-before != 1 {
		t.Fatalf("expected one denial recorded, got %v", after-before)
	}
}

func TestInstrumentCapturesStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/polls/:id", "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/polls/p1", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/polls/:id", "418"))
	if after-before != 1 {
		t.Fatalf("expected request counted under canonical path, got %v", after-before)
	}
}
