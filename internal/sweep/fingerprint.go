package sweep

import "fmt"

// FingerprintKey identifies records with identical content: the same
// content signature and the same size.
type FingerprintKey struct {
	Signature string
	SizeBytes int64
}

func (k FingerprintKey) String() string {
	return fmt.Sprintf("%s:%d", k.Signature, k.SizeBytes)
}

// Valid reports whether the key could ever match a stored record.
func (k FingerprintKey) Valid() bool {
	return k.Signature != "" && k.SizeBytes > 0
}

// FingerprintIndex maps fingerprints to the records sharing them.
// Bucket order follows input order; ranking happens in ComputeGroups.
type FingerprintIndex map[FingerprintKey][]*FileRecord

// BuildIndex groups records by fingerprint. Records without a content
// signature or with a non-positive size are left out, so empty and
// unreadable files never form groups.
func BuildIndex(records []*FileRecord) FingerprintIndex {
	index := make(FingerprintIndex)
	for _, r := range records {
		key, ok := r.Fingerprint()
		if !ok {
			continue
		}
		index[key] = append(index[key], r)
	}
	return index
}
