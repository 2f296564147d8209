package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arbflow/arbflow/internal/auth"
	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/server/middleware"
)

type fakeStore struct {
	opportunities map[string]domain.Opportunity
	saved         map[string][]domain.SavedOpportunity
	listErr       error
	viewCounts    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		opportunities: make(map[string]domain.Opportunity),
		saved:         make(map[string][]domain.SavedOpportunity),
		viewCounts:    make(map[string]int),
	}
}

func (s *fakeStore) Save(ctx context.Context, opp domain.Opportunity) (domain.SaveResult, error) {
	s.opportunities[opp.ID] = opp
	return domain.SaveResult{Status: domain.SaveStatusSaved, ID: opp.ID}, nil
}

func (s *fakeStore) DeactivateExpired(ctx context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) ListActive(ctx context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Opportunity
	for _, opp := range s.opportunities {
		if filter.Sport != "" && opp.Sport != filter.Sport {
			continue
		}
		if opp.ROI < filter.MinROI {
			continue
		}
		out = append(out, opp)
	}
	return out, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	opp, ok := s.opportunities[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return opp, nil
}

func (s *fakeStore) IncrementViewCount(ctx context.Context, id string) error {
	s.viewCounts[id]++
	return nil
}

func (s *fakeStore) SaveForUser(ctx context.Context, userID, oppID, notes string) error {
	if _, ok := s.opportunities[oppID]; !ok {
		return domain.ErrNotFound
	}
	s.saved[userID] = append(s.saved[userID], domain.SavedOpportunity{
		Opportunity: s.opportunities[oppID],
		Notes:       notes,
		SavedAt:     time.Now().UTC(),
	})
	return nil
}

func (s *fakeStore) ListSavedByUser(ctx context.Context, userID string) ([]domain.SavedOpportunity, error) {
	return s.saved[userID], nil
}

func (s *fakeStore) ListDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity(id, sport string, roi float64) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		Sport:      sport,
		EventName:  "Lakers vs Celtics",
		MarketType: "h2h",
		ROI:        roi,
		Active:     true,
	}
}

func TestListActive(t *testing.T) {
	store := newFakeStore()
	store.opportunities["a"] = testOpportunity("a", "basketball_nba", 5.0)
	store.opportunities["b"] = testOpportunity("b", "soccer_epl", 1.2)

	h := NewOpportunityHandler(store, nil, testLogger())

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 2},
		{"by sport", "?sport=basketball_nba", 1},
		{"min roi", "?minRoi=2", 1},
		{"no match", "?sport=tennis_atp", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/opportunities"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ListActive(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var resp struct {
				Count int `json:"count"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Count != tt.want {
				t.Errorf("count = %d, want %d", resp.Count, tt.want)
			}
		})
	}
}

func TestGetByIDIncrementsViews(t *testing.T) {
	store := newFakeStore()
	store.opportunities["a"] = testOpportunity("a", "basketball_nba", 5.0)

	h := NewOpportunityHandler(store, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/a", nil)
	req.SetPathValue("id", "a")
	rec := httptest.NewRecorder()
	h.GetByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.viewCounts["a"] != 1 {
		t.Errorf("view count = %d, want 1", store.viewCounts["a"])
	}
}

func TestGetByIDNotFound(t *testing.T) {
	h := NewOpportunityHandler(newFakeStore(), nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSaveRequiresIdentity(t *testing.T) {
	store := newFakeStore()
	store.opportunities["a"] = testOpportunity("a", "basketball_nba", 5.0)
	h := NewOpportunityHandler(store, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities/a/save", strings.NewReader(`{"notes":"x"}`))
	req.SetPathValue("id", "a")
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSaveAndListSaved(t *testing.T) {
	store := newFakeStore()
	store.opportunities["a"] = testOpportunity("a", "basketball_nba", 5.0)
	h := NewOpportunityHandler(store, nil, testLogger())

	verifier := auth.NewHMACVerifier("secret")
	token := verifier.Sign("user-1", time.Hour)

	protected := middleware.RequireAuth(verifier)

	// Bookmark through the middleware so identity lands in the context.
	saveReq := httptest.NewRequest(http.MethodPost, "/api/opportunities/a/save", strings.NewReader(`{"notes":"take it"}`))
	saveReq.SetPathValue("id", "a")
	saveReq.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(http.HandlerFunc(h.Save)).ServeHTTP(rec, saveReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/opportunities/saved", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected(http.HandlerFunc(h.ListSaved)).ServeHTTP(rec, listReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
		Saved []struct {
			Notes string `json:"notes"`
		} `json:"saved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Saved[0].Notes != "take it" {
		t.Errorf("unexpected saved list: %+v", resp)
	}
}

func TestRequireAuthRejectsBadToken(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	protected := middleware.RequireAuth(verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/saved", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	protected(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
