package character_test

import (
	"context"
	"testing"

	"github.com/talkscene/talkscene/internal/character"
)

func newTestCharacter(id, owner string) *character.Character {
	return &character.Character{
		ID:      id,
		OwnerID: owner,
		Name:    "Yuki",
		Gender:  character.GenderFemale,
		Style:   character.StyleCheerful,
	}
}

func TestMemStore_OwnerScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := character.NewMemStore()

	if err := s.Create(ctx, newTestCharacter("c1", "alice")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The owner sees the record; anyone else sees nothing.
	got, err := s.Get(ctx, "alice", "c1")
	if err != nil || got == nil {
		t.Fatalf("owner Get = %v, %v", got, err)
	}
	got, err = s.Get(ctx, "bob", "c1")
	if err != nil {
		t.Fatalf("foreign Get: %v", err)
	}
	if got != nil {
		t.Fatal("foreign owner must not see the character")
	}

	// Foreign delete is a silent no-op.
	if err := s.Delete(ctx, "bob", "c1"); err != nil {
		t.Fatalf("foreign Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "alice", "c1"); got == nil {
		t.Fatal("character should survive a foreign delete")
	}

	if err := s.Delete(ctx, "alice", "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "alice", "c1"); got != nil {
		t.Fatal("character should be gone after owner delete")
	}
}

func TestMemStore_MarkUsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := character.NewMemStore()

	if err := s.Create(ctx, newTestCharacter("c1", "alice")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for want := 1; want <= 3; want++ {
		c, err := s.MarkUsed(ctx, "alice", "c1")
		if err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}
		if c.UsageCount != want {
			t.Errorf("usageCount = %d, want %d", c.UsageCount, want)
		}
	}

	c, err := s.MarkUsed(ctx, "bob", "c1")
	if err != nil {
		t.Fatalf("foreign MarkUsed: %v", err)
	}
	if c != nil {
		t.Fatal("foreign MarkUsed must report missing")
	}
}

func TestMemStore_ListOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := character.NewMemStore()

	for _, id := range []string{"c1", "c2", "c3"} {
		if err := s.Create(ctx, newTestCharacter(id, "alice")); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if _, err := s.MarkUsed(ctx, "alice", "c2"); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != "c2" {
		t.Errorf("most recently used first: got %q, want c2", list[0].ID)
	}

	list, err = s.List(ctx, "bob")
	if err != nil {
		t.Fatalf("List bob: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %d characters, want 0", len(list))
	}
}

func TestValidate_RejectsBadFields(t *testing.T) {
	t.Parallel()
	c := newTestCharacter("c1", "alice")
	c.Gender = "other"
	c.Style = "sleepy"
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error, got nil")
	}
}
