// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"strings"
	"testing"
	"time"
)

func isBase62(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func TestGenerateID(t *testing.T) {
	for _, byteLen := range []int{6, 12, 16} {
		id, err := GenerateID(byteLen)
		if err != nil {
			t.Fatalf("GenerateID(%d) error = %v", byteLen, err)
		}
		if len(id) != byteLen*2 {
			t.Errorf("GenerateID(%d) length = %d, want %d", byteLen, len(id), byteLen*2)
		}
		if strings.Trim(id, "0123456789abcdef") != "" {
			t.Errorf("GenerateID(%d) = %q is not lowercase hex", byteLen, id)
		}
	}

	a, _ := GenerateID(16)
	b, _ := GenerateID(16)
	if a == b {
		t.Error("GenerateID() produced duplicate IDs")
	}
}

func TestGenerateGuestToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateGuestToken()
		if err != nil {
			t.Fatalf("GenerateGuestToken() error = %v", err)
		}
		if len(token) != 32 {
			t.Errorf("GenerateGuestToken() length = %d, want 32", len(token))
		}
		if strings.ContainsAny(token, "=+/") {
			t.Errorf("GenerateGuestToken() = %q is not URL-safe", token)
		}
		if seen[token] {
			t.Fatalf("GenerateGuestToken() repeated %q", token)
		}
		seen[token] = true
	}
}

func TestGenerateTableCode(t *testing.T) {
	tests := []struct {
		name    string
		tableID string
		salt    string
	}{
		{"standard", "table-1", "code-salt"},
		{"other table", "table-2", "code-salt"},
		{"other salt", "table-1", "another-salt"},
	}

	codes := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := GenerateTableCode(tt.tableID, tt.salt)
			if code == "" || len(code) > 9 {
				t.Errorf("GenerateTableCode() = %q, want 1-9 chars", code)
			}
			if !isBase62(code) {
				t.Errorf("GenerateTableCode() = %q contains non-alphanumerics", code)
			}
			if again := GenerateTableCode(tt.tableID, tt.salt); again != code {
				t.Errorf("GenerateTableCode() not deterministic: %q vs %q", code, again)
			}
			codes[tt.name] = code
		})
	}

	if codes["standard"] == codes["other table"] {
		t.Error("different tables produced the same code")
	}
	if codes["standard"] == codes["other salt"] {
		t.Error("different salts produced the same code")
	}
}

func TestBase62Encode(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{[]byte{0}, "0"},
		{[]byte{61}, "Z"},
		{[]byte{62}, "10"},
		{[]byte{1, 0}, "48"},
	}

	for _, tt := range tests {
		if got := base62Encode(tt.input); got != tt.want {
			t.Errorf("base62Encode(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHashIP(t *testing.T) {
	h := HashIP("10.0.0.7", "salt")
	if len(h) != 16 {
		t.Errorf("HashIP() length = %d, want 16", len(h))
	}
	if h != HashIP("10.0.0.7", "salt") {
		t.Error("HashIP() is not deterministic")
	}
	if h == HashIP("10.0.0.8", "salt") {
		t.Error("HashIP() collided for different addresses")
	}
	if h == HashIP("10.0.0.7", "pepper") {
		t.Error("HashIP() ignored the salt")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hashed, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hashed == "correct horse" {
		t.Fatal("HashPassword() returned the plain password")
	}
	if err := CheckPassword(hashed, "correct horse"); err != nil {
		t.Errorf("CheckPassword() with right password = %v", err)
	}
	if err := CheckPassword(hashed, "battery staple"); err != ErrInvalidCredentials {
		t.Errorf("CheckPassword() with wrong password = %v, want ErrInvalidCredentials", err)
	}
}

func TestStaffToken(t *testing.T) {
	token, expiresAt, err := IssueStaffToken("staff-1", "Rosa", "waiter", "jwt-secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueStaffToken() error = %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiresAt = %v, want about an hour from now", expiresAt)
	}

	claims, err := ParseStaffToken(token, "jwt-secret")
	if err != nil {
		t.Fatalf("ParseStaffToken() error = %v", err)
	}
	if claims.StaffID != "staff-1" || claims.Role != "waiter" || claims.Name != "Rosa" {
		t.Errorf("ParseStaffToken() claims = %+v", claims)
	}

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := ParseStaffToken(token, "other-secret"); err != ErrInvalidToken {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired, _, err := IssueStaffToken("staff-1", "Rosa", "waiter", "jwt-secret", -time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ParseStaffToken(expired, "jwt-secret"); err != ErrInvalidToken {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ParseStaffToken("not.a.token", "jwt-secret"); err != ErrInvalidToken {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})
}

func BenchmarkGenerateTableCode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateTableCode("table-12", "code-salt")
	}
}

func BenchmarkGenerateGuestToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateGuestToken()
	}
}
