package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashForTest(t *testing.T, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

func TestKeyringAuthenticate(t *testing.T) {
	kr, err := NewKeyring([]Key{
		{Kind: KindAdmin, ID: 1, Name: "root", Hash: hashForTest(t, "root-token")},
		{Kind: KindAdminUser, ID: 9, Name: "desk", Hash: hashForTest(t, "desk-token")},
	})
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}

	a, ok := kr.Authenticate("desk-token")
	if !ok {
		t.Fatal("expected desk-token to authenticate")
	}
	if a.Kind != KindAdminUser || a.ID != 9 {
		t.Errorf("actor = %+v, want admin_user 9", a)
	}

	if _, ok := kr.Authenticate("wrong"); ok {
		t.Error("wrong token should not authenticate")
	}
	if _, ok := kr.Authenticate(""); ok {
		t.Error("empty token should not authenticate")
	}
}

func TestNewKeyringRejectsBadKeys(t *testing.T) {
	if _, err := NewKeyring([]Key{{Kind: KindMember, Name: "m", Hash: hashForTest(t, "x")}}); err == nil {
		t.Error("expected error for member key")
	}
	if _, err := NewKeyring([]Key{{Kind: KindAdmin, Name: "plain", Hash: "not-a-hash"}}); err == nil {
		t.Error("expected error for invalid hash")
	}
}

func TestCheckPIN(t *testing.T) {
	hash := hashForTest(t, "4321")
	if !CheckPIN(hash, "4321") {
		t.Error("correct PIN rejected")
	}
	if CheckPIN(hash, "0000") {
		t.Error("wrong PIN accepted")
	}
	if !CheckPIN("", "anything") {
		t.Error("unset PIN should accept")
	}
}
