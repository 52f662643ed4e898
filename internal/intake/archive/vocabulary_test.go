package archive

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/landtenure/intake/internal/intake/model"
)

func serverVersions(m map[string]string) func(string) (string, bool) {
	return func(domain string) (string, bool) {
		v, ok := m[domain]
		return v, ok
	}
}

func TestCompareVocabularyIdentical(t *testing.T) {
	archive := model.VocabularyVersions{"claim_status": "1.2.3"}
	result := CompareVocabulary(archive, serverVersions(map[string]string{"claim_status": "1.2.3"}))

	if !result.IsCompatible || !result.IsFullyCompatible {
		t.Fatalf("expected identical versions to be fully compatible, got %+v", result)
	}
	if result.Domains[0].Level != model.VocabIdentical {
		t.Fatalf("expected Identical, got %v", result.Domains[0].Level)
	}
}

func TestCompareVocabularyPatchDifferenceIsCompatible(t *testing.T) {
	archive := model.VocabularyVersions{"tenure_type": "2.0.1"}
	result := CompareVocabulary(archive, serverVersions(map[string]string{"tenure_type": "2.0.5"}))

	if !result.IsCompatible {
		t.Fatalf("expected patch difference to be compatible")
	}
	if result.IsFullyCompatible {
		t.Fatalf("expected patch difference to not be fully compatible")
	}
	if result.Domains[0].Level != model.VocabPatchDifference {
		t.Fatalf("expected PatchDifference, got %v", result.Domains[0].Level)
	}
}

func TestCompareVocabularyMinorDifferenceIsCompatibleWithWarning(t *testing.T) {
	archive := model.VocabularyVersions{"evidence_type": "1.3.0"}
	result := CompareVocabulary(archive, serverVersions(map[string]string{"evidence_type": "1.5.0"}))

	if !result.IsCompatible {
		t.Fatalf("expected minor difference to be compatible")
	}
	if result.Domains[0].Level != model.VocabMinorDifference {
		t.Fatalf("expected MinorDifference, got %v", result.Domains[0].Level)
	}
}

func TestCompareVocabularyMajorDifferenceIsIncompatible(t *testing.T) {
	archive := model.VocabularyVersions{"claim_status": "1.0.0"}
	result := CompareVocabulary(archive, serverVersions(map[string]string{"claim_status": "2.0.0"}))

	if result.IsCompatible {
		t.Fatalf("expected major difference to be incompatible")
	}
	if result.Domains[0].Level != model.VocabMajorDifference {
		t.Fatalf("expected MajorDifference, got %v", result.Domains[0].Level)
	}
}

func TestCompareVocabularyUnknownDomainIsIncompatible(t *testing.T) {
	archive := model.VocabularyVersions{"nonexistent_domain": "1.0.0"}
	result := CompareVocabulary(archive, serverVersions(map[string]string{}))

	if result.IsCompatible {
		t.Fatalf("expected unknown domain to be incompatible")
	}
	if result.Domains[0].Level != model.VocabUnknownDomain {
		t.Fatalf("expected UnknownDomain, got %v", result.Domains[0].Level)
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payload := []byte("archive bytes used for the detached signature")
	sig := ed25519.Sign(priv, payload)
	sigB64 := base64.StdEncoding.EncodeToString(sig)

	valid, wasSigned, err := VerifySignature(payload, sigB64, pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wasSigned || !valid {
		t.Fatalf("expected valid signature, got valid=%v wasSigned=%v", valid, wasSigned)
	}

	tampered := append([]byte{}, payload...)
	tampered[0] ^= 0xFF
	valid, _, err = VerifySignature(tampered, sigB64, pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if valid {
		t.Fatalf("expected signature to fail over tampered payload")
	}
}

func TestVerifySignatureUnsignedIsReportedSeparately(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	valid, wasSigned, err := VerifySignature([]byte("x"), "", pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wasSigned || valid {
		t.Fatalf("expected unsigned result, got valid=%v wasSigned=%v", valid, wasSigned)
	}
}
