package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"salonledger/backend/internal/domain"
)

type userStoreStub struct {
	users map[string]domain.UserAccount
	err   error
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func stubWithUser(t *testing.T, username string, password string, active bool) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{users: map[string]domain.UserAccount{
		username: {ID: "usr_" + username, Username: username, PasswordHash: string(hash), Active: active},
	}}
}

func TestLoginIssuesTokenCarryingUserID(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "olivia", "s3cret-pass", true))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Olivia ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.UserID != "usr_olivia" {
		t.Fatalf("unexpected user id %s", resp.UserID)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != "usr_olivia" || actor.Username != "olivia" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	stub := stubWithUser(t, "olivia", "s3cret-pass", true)
	manager := NewAuthManager("test-secret", time.Hour, stub)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "olivia", Password: "nope"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "s3cret-pass"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	inactive := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "kim", "s3cret-pass", false))
	if _, err := inactive.Login(context.Background(), domain.LoginRequest{Username: "kim", Password: "s3cret-pass"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}

	broken := NewAuthManager("test-secret", time.Hour, &userStoreStub{err: errors.New("db down")})
	if _, err := broken.Login(context.Background(), domain.LoginRequest{Username: "olivia", Password: "x"}); err == nil || errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignatures(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	other := NewAuthManager("other-secret", time.Hour, nil)

	token, err := other.sign("usr_1", "someone", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := manager.sign("usr_1", "someone", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "usr_1"})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestVerifyPasswordRequiresBcryptHash(t *testing.T) {
	if verifyPassword("plain-text", "plain-text") {
		t.Fatalf("plain-text stored passwords must never verify")
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw-123456"), bcrypt.MinCost)
	if !verifyPassword(string(hash), "pw-123456") {
		t.Fatalf("expected bcrypt hash to verify")
	}
	if verifyPassword(string(hash), "  ") {
		t.Fatalf("blank input must not verify")
	}
}
