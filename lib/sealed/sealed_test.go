// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("public key %q does not start with age1", keypair.PublicKey)
	}
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key does not start with AGE-SECRET-KEY-1")
	}
	if err := ValidateRecipient(keypair.PublicKey); err != nil {
		t.Errorf("generated public key fails validation: %v", err)
	}
}

func TestSealRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	plaintext := []byte("gitlab-api-token-value")
	ciphertext, err := Seal(plaintext, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	opened, err := Open(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { opened.Close() })

	if !bytes.Equal(opened.Bytes(), plaintext) {
		t.Errorf("round trip: got %q, want %q", opened.Bytes(), plaintext)
	}
}

func TestSealMultipleRecipients(t *testing.T) {
	first, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { first.Close() })

	second, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	plaintext := []byte("shared-admin-password")
	ciphertext, err := Seal(plaintext, []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	for name, keypair := range map[string]*Keypair{"first": first, "second": second} {
		opened, err := Open(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Open() with %s key: %v", name, err)
		}
		if !bytes.Equal(opened.Bytes(), plaintext) {
			t.Errorf("%s key: got %q, want %q", name, opened.Bytes(), plaintext)
		}
		opened.Close()
	}
}

func TestSealNoRecipients(t *testing.T) {
	if _, err := Seal([]byte("secret"), nil); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
}

func TestSealInvalidRecipient(t *testing.T) {
	if _, err := Seal([]byte("secret"), []string{"not-an-age-key"}); err == nil {
		t.Fatal("expected error for invalid recipient key")
	}
}

func TestOpenWrongKey(t *testing.T) {
	sealer, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { sealer.Close() })

	other, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { other.Close() })

	ciphertext, err := Seal([]byte("secret"), []string{sealer.PublicKey})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	if _, err := Open(ciphertext, other.PrivateKey); err == nil {
		t.Fatal("expected error decrypting with wrong key")
	}
}

func TestOpenGarbage(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	if _, err := Open([]byte("not age ciphertext"), keypair.PrivateKey); err == nil {
		t.Fatal("expected error for garbage ciphertext")
	}
}

func TestOpenIdentityFileFormat(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	// Identity files as written by `credentials keygen` carry comment
	// lines before the secret key line.
	fileContents := "# created: 2026-08-22\n# public key: " + keypair.PublicKey + "\n" + keypair.PrivateKey.String() + "\n"
	identity, err := secret.NewFromBytes([]byte(fileContents))
	if err != nil {
		t.Fatalf("NewFromBytes() error: %v", err)
	}
	t.Cleanup(func() { identity.Close() })

	ciphertext, err := Seal([]byte("nextcloud-app-password"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	opened, err := Open(ciphertext, identity)
	if err != nil {
		t.Fatalf("Open() with commented identity file: %v", err)
	}
	t.Cleanup(func() { opened.Close() })

	if got := opened.String(); got != "nextcloud-app-password" {
		t.Errorf("got %q, want %q", got, "nextcloud-app-password")
	}
}

func TestValidateRecipient(t *testing.T) {
	if err := ValidateRecipient("age1invalid"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
