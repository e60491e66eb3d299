package sweep

import "sort"

// DuplicateGroup is a set of records with the same fingerprint, ranked so
// that Members[0] is the original to keep. Groups are derived on demand and
// never persisted.
type DuplicateGroup struct {
	Key     FingerprintKey
	Members []*FileRecord
}

// Original returns the member that is kept.
func (g *DuplicateGroup) Original() *FileRecord {
	return g.Members[0]
}

// Duplicates returns the members that are candidates for deletion.
func (g *DuplicateGroup) Duplicates() []*FileRecord {
	return g.Members[1:]
}

// TotalSize is the combined size of all members.
func (g *DuplicateGroup) TotalSize() int64 {
	return int64(len(g.Members)) * g.Key.SizeBytes
}

// WastedSpace is the space recovered by deleting every duplicate.
func (g *DuplicateGroup) WastedSpace() int64 {
	var total int64
	for _, r := range g.Duplicates() {
		total += r.SizeBytes
	}
	return total
}

// rankMembers orders records most recently modified first. Equal
// modification times fall back to ExternalID so results are reproducible.
func rankMembers(records []*FileRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ModifiedAt.Equal(b.ModifiedAt) {
			return a.ModifiedAt.After(b.ModifiedAt)
		}
		return a.ExternalID < b.ExternalID
	})
}

// ComputeGroups turns index buckets with at least two members into ranked
// DuplicateGroups, largest recoverable total first.
func ComputeGroups(index FingerprintIndex) []*DuplicateGroup {
	groups := make([]*DuplicateGroup, 0, len(index))
	for key, bucket := range index {
		if len(bucket) < 2 {
			continue
		}
		members := make([]*FileRecord, len(bucket))
		copy(members, bucket)
		rankMembers(members)
		groups = append(groups, &DuplicateGroup{Key: key, Members: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.TotalSize() != b.TotalSize() {
			return a.TotalSize() > b.TotalSize()
		}
		if a.Key.Signature != b.Key.Signature {
			return a.Key.Signature < b.Key.Signature
		}
		return a.Key.SizeBytes < b.Key.SizeBytes
	})
	return groups
}

// ComputeWastedSpace sums the size of every non-original member.
func ComputeWastedSpace(groups []*DuplicateGroup) int64 {
	var total int64
	for _, g := range groups {
		total += g.WastedSpace()
	}
	return total
}

// CountDuplicates returns the number of non-original members.
func CountDuplicates(groups []*DuplicateGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Members) - 1
	}
	return n
}

// FlatDuplicate is one deletable record with its group context, for flat or
// paginated display. Original points at the kept member of the group.
type FlatDuplicate struct {
	Record         *FileRecord
	Key            FingerprintKey
	DuplicateCount int
	GroupSize      int
	Original       *FileRecord
}

// FlattenDuplicates lists every non-original member in group order.
func FlattenDuplicates(groups []*DuplicateGroup) []FlatDuplicate {
	var flat []FlatDuplicate
	for _, g := range groups {
		dups := g.Duplicates()
		for _, r := range dups {
			flat = append(flat, FlatDuplicate{
				Record:         r,
				Key:            g.Key,
				DuplicateCount: len(dups),
				GroupSize:      len(g.Members),
				Original:       g.Original(),
			})
		}
	}
	return flat
}

// Paginate returns page (1-based) of items with pageSize entries per page.
// Out of range pages return an empty slice.
func Paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
