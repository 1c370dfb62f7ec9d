package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/calcx/internal/types"
)

func TestOpen_CreatesHierarchyTables(t *testing.T) {
	tt := newTestTypes()
	s := createTestStore(t, tt.u)

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", "Account").Scan(&name)
	if err != nil {
		t.Fatalf("table Account not found: %v", err)
	}

	// Subtypes share the root table.
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", "PremiumAccount").Scan(&name)
	if err == nil {
		t.Error("subtype PremiumAccount must not get its own table")
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	tt := newTestTypes()
	s := createTestStore(t, tt.u)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	tt := newTestTypes()
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, tt.u)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_RejectsChangedLayout(t *testing.T) {
	tt := newTestTypes()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, tt.u)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	changed := types.NewStruct("Account", nil).WithField("Owner", types.Int)
	_, err = Open(path, types.NewUniverse().MustAdd(changed))
	if err == nil {
		t.Fatal("expected layout mismatch error")
	}
	if !strings.Contains(err.Error(), "different layout") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTable_Layout(t *testing.T) {
	tt := newTestTypes()

	table, err := NewTable(tt.u, tt.account)
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}

	var names []string
	for _, c := range table.Columns {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, ","); got != "Owner,Active,Tier,Credits" {
		t.Errorf("columns = %s", got)
	}
	if len(table.LayoutHash) != 64 {
		t.Errorf("layout hash %q is not a SHA-256 hex digest", table.LayoutHash)
	}

	ddl := table.DDL()
	if !strings.Contains(ddl[0], `"Active" INTEGER`) || !strings.Contains(ddl[0], `"Owner" TEXT`) {
		t.Errorf("unexpected DDL:\n%s", ddl[0])
	}
}

func TestNewTable_Conflicts(t *testing.T) {
	root := types.NewStruct("Root", nil)
	left := types.NewStruct("Left", root).WithField("X", types.String)
	right := types.NewStruct("Right", root).WithField("X", types.Int)
	u := types.NewUniverse().MustAdd(root, left, right)

	if _, err := NewTable(u, root); err == nil {
		t.Error("expected conflicting field types to fail")
	}

	reserved := types.NewStruct("Reserved", nil).WithField("id", types.String)
	if _, err := NewTable(types.NewUniverse().MustAdd(reserved), reserved); err == nil {
		t.Error("expected reserved column name to fail")
	}
}

func TestTable_UnknownType(t *testing.T) {
	tt := newTestTypes()
	s := createTestStore(t, tt.u)

	other := types.NewStruct("Other", nil)
	if _, err := s.Table(other); err == nil {
		t.Error("expected error for type outside the universe")
	}
	if _, err := s.Load(context.Background(), other); err == nil {
		t.Error("expected Load error for type outside the universe")
	}
}
