package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/handsfree-core/internal/infrastructure/database"
	_ "github.com/nerrad567/handsfree-core/migrations"
)

// setupAuditDB opens a migrated database in a temp dir.
func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

func TestRecord_FillsDefaults(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()

	e := &Entry{
		Operator: "kit",
		Role:     "admin",
		Action:   "POST /headsets/{address}/connect",
		Address:  "00:1A:7D:DA:71:13",
		Status:   200,
		Details:  map[string]any{"ok": true},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("Record() left ID=%q CreatedAt=%v", e.ID, e.CreatedAt)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1", res.Total, len(res.Entries))
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.Operator != "kit" || got.Address != e.Address || got.Status != 200 {
		t.Errorf("entry = %+v", got)
	}
	if got.Details["ok"] != true {
		t.Errorf("details = %v", got.Details)
	}
	if res.Limit != defaultListLimit {
		t.Errorf("Limit = %d, want default %d", res.Limit, defaultListLimit)
	}
}

func TestRecord_RequiresOperatorAndAction(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))

	for _, e := range []*Entry{
		{Action: "x"},
		{Operator: "kit"},
	} {
		if err := repo.Record(context.Background(), e); err == nil {
			t.Errorf("Record(%+v) should fail", e)
		}
	}
}

func TestList_FiltersAndPages(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	seed := []Entry{
		{Operator: "kit", Action: "connect", Address: "A", Status: 200},
		{Operator: "kit", Action: "disconnect", Address: "A", Status: 200},
		{Operator: "sam", Action: "connect", Address: "B", Status: 200},
		{Operator: "sam", Action: "audio.connect", Status: 200},
	}
	for i := range seed {
		seed[i].Role = "admin"
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"all newest first", Filter{}, 4, "audio.connect", 4},
		{"by operator", Filter{Operator: "kit"}, 2, "disconnect", 2},
		{"by address", Filter{Address: "A"}, 2, "disconnect", 2},
		{"by action", Filter{Action: "connect"}, 2, "connect", 2},
		{"paged", Filter{Limit: 1, Offset: 1}, 4, "connect", 1},
		{"oversize limit clamps", Filter{Limit: 10_000}, 4, "audio.connect", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantLen {
				t.Fatalf("total=%d len=%d, want %d/%d", res.Total, len(res.Entries), tt.wantTotal, tt.wantLen)
			}
			if res.Entries[0].Action != tt.wantFirst {
				t.Errorf("first action = %q, want %q", res.Entries[0].Action, tt.wantFirst)
			}
			if res.Limit > maxListLimit {
				t.Errorf("Limit = %d exceeds max", res.Limit)
			}
		})
	}
}

func TestList_Empty(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))

	res, err := repo.List(context.Background(), Filter{Operator: "nobody"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Entries == nil || len(res.Entries) != 0 || res.Total != 0 {
		t.Errorf("List() = %+v, want empty non-nil page", res)
	}
}

func TestPrune(t *testing.T) {
	repo := NewSQLiteRepository(setupAuditDB(t))
	ctx := context.Background()

	old := &Entry{Operator: "kit", Role: "admin", Action: "connect", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	recent := &Entry{Operator: "kit", Role: "admin", Action: "disconnect"}
	for _, e := range []*Entry{old, recent} {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].ID != recent.ID {
		t.Errorf("remaining = %+v, want only the recent entry", res.Entries)
	}
}
