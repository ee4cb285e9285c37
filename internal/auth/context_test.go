package auth

import (
	"context"
	"testing"
)

func TestWithActorAndFromContext(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{Kind: KindAdminUser, ID: 7, Name: "desk"})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected Actor in context")
	}
	if got.Kind != KindAdminUser {
		t.Errorf("Kind = %q, want %q", got.Kind, KindAdminUser)
	}
	if got.ID != 7 {
		t.Errorf("ID = %d, want 7", got.ID)
	}
	if !got.IsAdmin() {
		t.Error("admin user should count as admin")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing Actor")
	}
}

func TestActorRef(t *testing.T) {
	tests := []struct {
		actor Actor
		want  string
	}{
		{Member(12), "member:12"},
		{Actor{Kind: KindAdmin, ID: 3}, "admin:3"},
		{Actor{Kind: KindAdminUser, ID: 7}, "admin_user:7"},
		{System("backfill"), "system:backfill"},
	}
	for _, tt := range tests {
		if got := tt.actor.Ref(); got != tt.want {
			t.Errorf("Ref() = %q, want %q", got, tt.want)
		}
	}
}

func TestMemberIsNotAdmin(t *testing.T) {
	if Member(1).IsAdmin() {
		t.Error("member should not be admin")
	}
}
