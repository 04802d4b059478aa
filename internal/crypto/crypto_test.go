package crypto

import (
	"testing"
)

func testSalt() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveEntityKey("api-key-for-unit-tests", testSalt())
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	original := "secret message content"

	encrypted, err := Encrypt(original, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if !IsEncrypted(encrypted) {
		t.Fatalf("expected encrypted value to start with %q prefix, got %q", "enc:", encrypted)
	}

	if encrypted == original {
		t.Fatal("encrypted value should differ from plaintext")
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	if decrypted != original {
		t.Fatalf("round-trip failed: got %q, want %q", decrypted, original)
	}
}

func TestEncryptEmptyString(t *testing.T) {
	key := testKey(t)

	encrypted, err := Encrypt("", key)
	if err != nil {
		t.Fatalf("Encrypt empty: %v", err)
	}

	if encrypted != "" {
		t.Fatalf("encrypting empty string should return empty, got %q", encrypted)
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	key := testKey(t)

	plain := "hi @everyone"
	result, err := Decrypt(plain, key)
	if err != nil {
		t.Fatalf("Decrypt plaintext: %v", err)
	}

	if result != plain {
		t.Fatalf("plaintext passthrough failed: got %q, want %q", result, plain)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1 := testKey(t)
	key2, err := DeriveEntityKey("a-different-api-key", testSalt())
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}

	encrypted, err := Encrypt("secret", key1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	_, err = Decrypt(encrypted, key2)
	if err == nil {
		t.Fatal("expected error when decrypting with wrong key")
	}
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"enc:abc123", true},
		{"enc:", true},
		{"ENC:abc", false},
		{"plaintext", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsEncrypted(tt.value); got != tt.want {
			t.Errorf("IsEncrypted(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestDeriveEntityKeyDeterministic(t *testing.T) {
	key1, err := DeriveEntityKey("same-api-key", testSalt())
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}
	key2, err := DeriveEntityKey("same-api-key", testSalt())
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}

	if string(key1) != string(key2) {
		t.Fatal("same (api key, salt) should derive the same key every time")
	}
	if len(key1) != KeySize {
		t.Fatalf("key length = %d, want %d", len(key1), KeySize)
	}
}

func TestDeriveEntityKeyDiffersBySaltAndKey(t *testing.T) {
	base, _ := DeriveEntityKey("key-a", testSalt())

	diffKey, _ := DeriveEntityKey("key-b", testSalt())
	if string(base) == string(diffKey) {
		t.Fatal("different api keys should derive different keys")
	}

	diffSalt, _ := DeriveEntityKey("key-a", []byte("different-salt-value-32-bytes!!"))
	if string(base) == string(diffSalt) {
		t.Fatal("different salts should derive different keys")
	}
}

func TestDeriveEntityKeyRequiresInputs(t *testing.T) {
	if _, err := DeriveEntityKey("", testSalt()); err == nil {
		t.Fatal("expected error for empty api key")
	}
	if _, err := DeriveEntityKey("key", nil); err == nil {
		t.Fatal("expected error for empty salt")
	}
}

func TestEncryptUniqueNonces(t *testing.T) {
	key := testKey(t)
	plain := "same-plaintext"

	enc1, _ := Encrypt(plain, key)
	enc2, _ := Encrypt(plain, key)

	if enc1 == enc2 {
		t.Fatal("two encryptions of the same plaintext should produce different ciphertext (unique nonces)")
	}

	dec1, _ := Decrypt(enc1, key)
	dec2, _ := Decrypt(enc2, key)

	if dec1 != plain || dec2 != plain {
		t.Fatalf("both should decrypt to %q, got %q and %q", plain, dec1, dec2)
	}
}
