package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/services"
)

type fakeLeadService struct {
	leads []domain.Lead
	err   error
}

func (f *fakeLeadService) SubmitLead(_ context.Context, lead domain.Lead) error {
	if f.err != nil {
		return f.err
	}
	f.leads = append(f.leads, lead)
	return nil
}

func postLead(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:52100"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLeadEndpointAcceptsSubmission(t *testing.T) {
	leads := &fakeLeadService{}
	router := NewRouter(WithLeadRoutes(NewLeadHandlers(leads).Routes))

	rr := postLead(router, `{"name":"Casey","email":"casey@example.com","message":"quote please","source":"calculator"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(leads.leads) != 1 || leads.leads[0].Email != "casey@example.com" {
		t.Fatalf("unexpected captured leads %+v", leads.leads)
	}
}

func TestLeadEndpointRejectsInvalidLead(t *testing.T) {
	leads := &fakeLeadService{err: services.ErrLeadInvalidInput}
	router := NewRouter(WithLeadRoutes(NewLeadHandlers(leads).Routes))

	rr := postLead(router, `{"name":"","email":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLeadEndpointRateLimitsPerClient(t *testing.T) {
	leads := &fakeLeadService{}
	router := NewRouter(WithLeadRoutes(NewLeadHandlers(leads).Routes))

	body := `{"name":"Casey","email":"casey@example.com"}`
	var last int
	for i := 0; i < leadRateLimit+1; i++ {
		last = postLead(router, body).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding the limit, got %d", last)
	}
}

func TestLeadEndpointRateLimitIgnoresSourcePort(t *testing.T) {
	leads := &fakeLeadService{}
	router := NewRouter(WithLeadRoutes(NewLeadHandlers(leads).Routes))

	// The same client reconnecting from fresh ephemeral ports shares one
	// window; only the host part of the remote address keys the limiter.
	body := `{"name":"Casey","email":"casey@example.com"}`
	var last int
	for i := 0; i < leadRateLimit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/leads", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = fmt.Sprintf("203.0.113.7:%d", 50000+i)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 despite changing ports, got %d", last)
	}
}
