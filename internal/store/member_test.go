package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dukerupert/muster/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "muster.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupMemberTestDB(t *testing.T) (*MemberStore, *ChapterStore) {
	t.Helper()
	db := openTestDB(t)
	return NewMemberStore(db), NewChapterStore(db)
}

func TestMemberCreateAndGet(t *testing.T) {
	ms, cs := setupMemberTestDB(t)
	ctx := context.Background()

	ch, err := cs.Create(ctx, "North")
	if err != nil {
		t.Fatalf("create chapter: %v", err)
	}

	m, err := ms.Create(ctx, ch.ID, "Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if m.Name != "Alice" {
		t.Errorf("name = %q, want %q", m.Name, "Alice")
	}
	if m.ChapterID != ch.ID {
		t.Errorf("chapter_id = %d, want %d", m.ChapterID, ch.ID)
	}
	if !m.Active || m.Deleted {
		t.Errorf("active/deleted = %v/%v, want true/false", m.Active, m.Deleted)
	}
	if m.HasPIN {
		t.Error("new member should not have a PIN")
	}

	got, err := ms.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent member")
	}
}

func TestMemberListEligible(t *testing.T) {
	ms, cs := setupMemberTestDB(t)
	ctx := context.Background()

	north, _ := cs.Create(ctx, "North")
	south, _ := cs.Create(ctx, "South")
	east, _ := cs.Create(ctx, "East")

	a, _ := ms.Create(ctx, north.ID, "A")
	b, _ := ms.Create(ctx, south.ID, "B")
	inactive, _ := ms.Create(ctx, north.ID, "Inactive")
	gone, _ := ms.Create(ctx, south.ID, "Gone")
	ms.Create(ctx, east.ID, "Elsewhere")

	if err := ms.SetActive(ctx, inactive.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := ms.SoftDelete(ctx, gone.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	ids, err := ms.ListEligible(ctx, []int64{north.ID, south.ID, north.ID})
	if err != nil {
		t.Fatalf("list eligible: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("eligible = %v, want [%d %d]", ids, a.ID, b.ID)
	}

	none, err := ms.ListEligible(ctx, nil)
	if err != nil {
		t.Fatalf("list eligible empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no members for empty chapter set, got %v", none)
	}
}

func TestMemberMissingIDs(t *testing.T) {
	ms, cs := setupMemberTestDB(t)
	ctx := context.Background()

	ch, _ := cs.Create(ctx, "North")
	a, _ := ms.Create(ctx, ch.ID, "A")
	gone, _ := ms.Create(ctx, ch.ID, "Gone")
	ms.SoftDelete(ctx, gone.ID)

	missing, err := ms.MissingIDs(ctx, []int64{a.ID, gone.ID, 4242})
	if err != nil {
		t.Fatalf("missing ids: %v", err)
	}
	if len(missing) != 2 || missing[0] != gone.ID || missing[1] != 4242 {
		t.Errorf("missing = %v, want [%d 4242]", missing, gone.ID)
	}
}

func TestMemberPIN(t *testing.T) {
	ms, cs := setupMemberTestDB(t)
	ctx := context.Background()

	ch, _ := cs.Create(ctx, "North")
	m, _ := ms.Create(ctx, ch.ID, "A")

	hash, err := ms.GetPINHash(ctx, m.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty", hash)
	}

	if err := ms.SetPIN(ctx, m.ID, "$2a$10$hash"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	hash, _ = ms.GetPINHash(ctx, m.ID)
	if hash != "$2a$10$hash" {
		t.Errorf("hash = %q, want stored value", hash)
	}

	got, _ := ms.GetByID(ctx, m.ID)
	if !got.HasPIN {
		t.Error("expected HasPIN after SetPIN")
	}

	if _, err := ms.GetPINHash(ctx, 9999); err == nil {
		t.Error("expected error for nonexistent member")
	}
}
