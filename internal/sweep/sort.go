package sweep

// Sort fields accepted by ListRecords.
const (
	SortByName       = "name"
	SortBySize       = "size"
	SortByMimeType   = "mimeType"
	SortByModifiedAt = "modifiedAt"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

var sortFields = map[string]bool{
	SortByName:       true,
	SortBySize:       true,
	SortByMimeType:   true,
	SortByModifiedAt: true,
}

// DefaultSort is used whenever a requested sort is not recognized.
var DefaultSort = RecordSort{Field: SortByModifiedAt, Direction: SortDesc}

// NormalizeSort applies the sort allow-list. An unknown field falls back to
// DefaultSort entirely; a known field with an unknown direction keeps the
// field and uses the default direction.
func NormalizeSort(s RecordSort) RecordSort {
	if !sortFields[s.Field] {
		return DefaultSort
	}
	if s.Direction != SortAsc && s.Direction != SortDesc {
		return RecordSort{Field: s.Field, Direction: DefaultSort.Direction}
	}
	return s
}
