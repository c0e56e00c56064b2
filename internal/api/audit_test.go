package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/handsfree-core/internal/audit"
	"github.com/nerrad567/handsfree-core/internal/auth"
)

// fakeAudit is an in-memory audit.Repository.
type fakeAudit struct {
	mu        sync.Mutex
	entries   []audit.Entry
	lastQuery audit.Filter
	err       error
}

func (f *fakeAudit) Record(_ context.Context, e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{Entries: append([]audit.Entry{}, f.entries...), Total: len(f.entries), Limit: filter.Limit}, nil
}

func (f *fakeAudit) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeAudit) recorded() []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Entry{}, f.entries...)
}

const auditAddr = "00:1A:7D:DA:71:13"

func TestAudit_RecordsAdminCommands(t *testing.T) {
	env := testServer(t)
	admin := token(t, auth.RoleAdmin)

	wantOK(t, env.do(t, http.MethodPost, "/api/v1/headsets/00:1a:7d:da:71:13/connect", "", admin), true)
	// A second connect is refused; the refusal is recorded too.
	wantOK(t, env.do(t, http.MethodPost, "/api/v1/headsets/"+auditAddr+"/connect", "", admin), false)

	got := env.audit.recorded()
	if len(got) != 2 {
		t.Fatalf("recorded %d entries, want 2: %+v", len(got), got)
	}
	for i, wantAccepted := range []bool{true, false} {
		e := got[i]
		if e.Action != "POST /headsets/{address}/connect" {
			t.Errorf("[%d] Action = %q", i, e.Action)
		}
		if e.Address != auditAddr {
			t.Errorf("[%d] Address = %q, want %q", i, e.Address, auditAddr)
		}
		if e.Operator != "admin-user" || e.Role != string(auth.RoleAdmin) {
			t.Errorf("[%d] operator = %q/%q", i, e.Operator, e.Role)
		}
		if e.Status != http.StatusOK {
			t.Errorf("[%d] Status = %d", i, e.Status)
		}
		if e.Details["accepted"] != wantAccepted {
			t.Errorf("[%d] accepted = %v, want %v", i, e.Details["accepted"], wantAccepted)
		}
		if e.RequestID == "" {
			t.Errorf("[%d] RequestID empty", i)
		}
	}
}

func TestAudit_SkipsReadsAndForbidden(t *testing.T) {
	env := testServer(t)

	env.do(t, http.MethodGet, "/api/v1/audit", "", token(t, auth.RoleAdmin))
	env.do(t, http.MethodGet, "/api/v1/headsets", "", token(t, auth.RoleViewer))
	if w := env.do(t, http.MethodPost, "/api/v1/audio/connect", "", token(t, auth.RoleViewer)); w.Code != http.StatusForbidden {
		t.Fatalf("viewer audio connect status = %d, want 403", w.Code)
	}

	if got := env.audit.recorded(); len(got) != 0 {
		t.Errorf("recorded %+v, want nothing", got)
	}
}

func TestAudit_RecordsMalformedRequests(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/roam", `{"nope":1}`, token(t, auth.RoleAdmin))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	got := env.audit.recorded()
	if len(got) != 1 || got[0].Status != http.StatusBadRequest || got[0].Action != "POST /session/roam" {
		t.Errorf("recorded %+v", got)
	}
	if got[0].Address != "" {
		t.Errorf("Address = %q, want empty for session routes", got[0].Address)
	}
}

func TestAudit_RecordFailureDoesNotFailRequest(t *testing.T) {
	env := testServer(t)
	env.audit.err = errors.New("disk full")

	wantOK(t, env.do(t, http.MethodPost, "/api/v1/headsets/"+auditAddr+"/connect", "", token(t, auth.RoleAdmin)), true)
}

func TestListAudit(t *testing.T) {
	env := testServer(t)
	env.audit.entries = []audit.Entry{{ID: "aud-1", Operator: "kit", Action: "POST /audio/connect", Status: 200}}

	tests := []struct {
		name       string
		query      string
		tok        string
		wantStatus int
	}{
		{"admin lists", "?operator=kit&address=00_1a_7d_da_71_13&limit=5&offset=2", token(t, auth.RoleAdmin), http.StatusOK},
		{"viewer forbidden", "", token(t, auth.RoleViewer), http.StatusForbidden},
		{"anonymous", "", "", http.StatusUnauthorized},
		{"bad limit", "?limit=0", token(t, auth.RoleAdmin), http.StatusBadRequest},
		{"bad offset", "?offset=-1", token(t, auth.RoleAdmin), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/audit"+tt.query, "", tt.tok)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	q := env.audit.lastQuery
	if q.Operator != "kit" || q.Address != auditAddr || q.Limit != 5 || q.Offset != 2 {
		t.Errorf("filter = %+v", q)
	}

	w := env.do(t, http.MethodGet, "/api/v1/audit", "", token(t, auth.RoleAdmin))
	res := decode[audit.ListResult](t, w)
	if res.Total != 1 || res.Entries[0].ID != "aud-1" {
		t.Errorf("ListResult = %+v", res)
	}
}

func TestListAudit_Unavailable(t *testing.T) {
	env := testServer(t)
	env.srv.audit = nil
	env.router = env.srv.buildRouter()

	w := env.do(t, http.MethodGet, "/api/v1/audit", "", token(t, auth.RoleAdmin))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "audit") {
		t.Errorf("body = %s", w.Body.String())
	}
}
