package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/calcx/internal/types"
)

type testTypes struct {
	u       *types.Universe
	account *types.Type
	premium *types.Type
	tier    *types.Type
}

// newTestTypes declares Account <- PremiumAccount.
func newTestTypes() testTypes {
	tier := types.NewEnum("Tier",
		types.EnumValue{Name: "Basic", Value: 0},
		types.EnumValue{Name: "Gold", Value: 1},
	)
	account := types.NewStruct("Account", nil).
		WithField("Owner", types.String).
		WithField("Active", types.Bool).
		WithProperty("Label", types.String)
	premium := types.NewStruct("PremiumAccount", account).
		WithField("Tier", tier).
		WithField("Credits", types.Int)
	u := types.NewUniverse().MustAdd(tier, account, premium)
	return testTypes{u: u, account: account, premium: premium, tier: tier}
}

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, u *types.Universe) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, u)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
