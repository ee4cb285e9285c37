package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Key is a provisioned API key for an admin or admin user. Hash is the
// bcrypt hash of the bearer token.
type Key struct {
	Kind Kind
	ID   int64
	Name string
	Hash string
}

// Keyring authenticates bearer tokens against provisioned keys.
type Keyring struct {
	keys []Key
}

func NewKeyring(keys []Key) (*Keyring, error) {
	for _, k := range keys {
		if k.Kind != KindAdmin && k.Kind != KindAdminUser {
			return nil, fmt.Errorf("key %q: unsupported kind %q", k.Name, k.Kind)
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("key %q: invalid bcrypt hash: %w", k.Name, err)
		}
	}
	return &Keyring{keys: keys}, nil
}

// Authenticate returns the actor owning token.
func (kr *Keyring) Authenticate(token string) (Actor, bool) {
	if token == "" {
		return Actor{}, false
	}
	for _, k := range kr.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			return Actor{Kind: k.Kind, ID: k.ID, Name: k.Name}, true
		}
	}
	return Actor{}, false
}

// CheckPIN reports whether pin matches the bcrypt hash. An empty hash means
// no PIN is set and any pin is accepted.
func CheckPIN(hash, pin string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// HashSecret returns a bcrypt hash suitable for Key.Hash or a member PIN.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}
