package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for content-addressed fingerprints.
// The version suffix allows a future algorithm migration.
const (
	DomainFact    = "greynet/fact/v1"
	DomainDataset = "greynet/dataset/v1"
	DomainParams  = "greynet/params/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FactHash is the content hash of a single fact.
func FactHash(f Fact) (string, error) {
	canonical, err := MarshalCanonical(FactObject(f))
	if err != nil {
		return "", fmt.Errorf("FactHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// ParamsHash fingerprints any canonical-marshalable parameter object.
func ParamsHash(obj map[string]any) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ParamsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainParams, canonical), nil
}

// DatasetHasher fingerprints a stream of facts. The result depends on the
// order facts are added, so callers feed facts in store order.
type DatasetHasher struct {
	h     hash.Hash
	count int64
}

// NewDatasetHasher returns a hasher seeded with the dataset domain.
func NewDatasetHasher() *DatasetHasher {
	h := sha256.New()
	h.Write([]byte(DomainDataset))
	h.Write([]byte{0x00})
	return &DatasetHasher{h: h}
}

// Add feeds one fact.
func (d *DatasetHasher) Add(f Fact) error {
	canonical, err := MarshalCanonical(FactObject(f))
	if err != nil {
		return fmt.Errorf("DatasetHasher: failed to marshal: %w", err)
	}
	d.h.Write(canonical)
	d.h.Write([]byte{'\n'})
	d.count++
	return nil
}

// Count returns the number of facts added.
func (d *DatasetHasher) Count() int64 { return d.count }

// Sum returns the hex fingerprint of everything added so far.
func (d *DatasetHasher) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
