package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-must-be-at-least-32-characters-long"

func newTestManager(t *testing.T, now time.Time) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(testSecret, "echoaid", 15*time.Minute)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}
	return m.WithClock(func() time.Time { return now })
}

func TestNewTokenManager_ShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", "echoaid", time.Minute); !errors.Is(err, ErrShortSecret) {
		t.Errorf("NewTokenManager() error = %v, want ErrShortSecret", err)
	}
}

// TestTokenManager_Issue tests token issuance
func TestTokenManager_Issue(t *testing.T) {
	m := newTestManager(t, time.Now())

	tests := []struct {
		name    string
		subject string
		role    string
		wantErr error
	}{
		{"Device token", "phone_ab12c", RoleDevice, nil},
		{"Responder token", "responder-7", RoleResponder, nil},
		{"Operator token", "ops", RoleOperator, nil},
		{"Empty subject", "", RoleDevice, ErrEmptySubject},
		{"Unknown role", "ops", "admin", ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := m.Issue(tt.subject, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Issue() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}

			claims, err := m.ValidateToken(context.Background(), token)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.Subject != tt.subject || claims.Role != tt.role {
				t.Errorf("claims = %s/%s, want %s/%s", claims.Subject, claims.Role, tt.subject, tt.role)
			}
			if claims.Issuer != "echoaid" {
				t.Errorf("issuer = %q", claims.Issuer)
			}
		})
	}
}

func TestTokenManager_Expiry(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	token, err := newTestManager(t, issued).Issue("phone_1", RoleDevice)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = newTestManager(t, time.Now()).ValidateToken(context.Background(), token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenManager_RejectsTampering(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, now)

	other, err := NewTokenManager("another-secret-that-is-also-32-characters!!", "echoaid", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, _ := other.Issue("phone_1", RoleOperator)

	wrongIssuer, _ := func() (string, error) {
		mm, _ := NewTokenManager(testSecret, "someone-else", time.Minute)
		return mm.Issue("phone_1", RoleOperator)
	}()

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "phone_1",
			Issuer:    "echoaid",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "phone_1",
			Issuer:    "echoaid",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"Empty", "", ErrInvalidToken},
		{"Garbage", "not.a.token", ErrInvalidToken},
		{"Wrong secret", foreign, ErrInvalidToken},
		{"Wrong issuer", wrongIssuer, ErrInvalidToken},
		{"Unknown role", badRole, ErrInvalidClaims},
		{"Unsigned", noneAlg, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(context.Background(), tt.token); !errors.Is(err, tt.want) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAllows(t *testing.T) {
	tests := []struct {
		role, required string
		want           bool
	}{
		{RoleOperator, RoleResponder, true},
		{RoleResponder, RoleResponder, true},
		{RoleDevice, RoleResponder, false},
		{RoleDevice, RoleDevice, true},
		{"", RoleDevice, false},
		{"admin", RoleDevice, false},
	}
	for _, tt := range tests {
		if got := Allows(tt.role, tt.required); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		target  string
		want    string
		wantErr error
	}{
		{"Header", "Bearer abc", "/api/blockades", "abc", nil},
		{"Lowercase scheme", "bearer abc", "/api/blockades", "abc", nil},
		{"Basic scheme", "Basic abc", "/api/blockades", "", ErrInvalidToken},
		{"Query parameter", "", "/ws?access_token=xyz", "xyz", nil},
		{"Nothing", "", "/api/blockades", "", ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(r)
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Errorf("BearerToken() = %q, %v; want %q, %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestClaimsContext(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Error("empty context should carry no claims")
	}
	ctx := WithClaims(context.Background(), &Claims{Role: RoleDevice})
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.Role != RoleDevice {
		t.Errorf("ClaimsFromContext() = %+v, %v", c, ok)
	}
}
