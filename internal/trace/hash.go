package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// allows the encoding to change without colliding with old IDs.
const (
	DomainRecord = "fsmstack/record/v1"
	DomainTrace  = "fsmstack/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ID returns the record's content-addressed identity. The same run ID,
// seq and event always hash to the same ID.
func (r Record) ID() (string, error) {
	canonical, err := MarshalCanonical(r.Canonical())
	if err != nil {
		return "", fmt.Errorf("record id: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustID is like ID but panics on error. Record fields are always
// encodable, so this only fails on a programming error.
func (r Record) MustID() string {
	id, err := r.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Digest hashes a whole trace. Two traces have the same digest exactly
// when they hold the same records in the same order.
func Digest(records []Record) (string, error) {
	arr := make([]any, len(records))
	for i, r := range records {
		arr[i] = r.Canonical()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("trace digest: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// Hash returns the domain-separated SHA-256 of v's canonical JSON.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}
