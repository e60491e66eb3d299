package sweep

import (
	"strings"
	"time"
)

// MimeCategory is the coarse classification used by reports and filters.
type MimeCategory string

const (
	CategoryVideo    MimeCategory = "video"
	CategoryImage    MimeCategory = "image"
	CategoryDocument MimeCategory = "document"
	CategoryOther    MimeCategory = "other"
)

// FolderMimeType marks records that represent folders. Folders carry no
// content signature and are never duplicate candidates.
const FolderMimeType = "inode/directory"

// documentMimeTypes lists non-text MIME types treated as documents.
var documentMimeTypes = map[string]bool{
	"application/pdf":                                true,
	"application/msword":                             true,
	"application/rtf":                                true,
	"application/epub+zip":                           true,
	"application/vnd.ms-excel":                       true,
	"application/vnd.ms-powerpoint":                  true,
	"application/vnd.oasis.opendocument.text":        true,
	"application/vnd.oasis.opendocument.spreadsheet": true,
	"application/vnd.google-apps.document":           true,
	"application/vnd.google-apps.spreadsheet":        true,
	"application/vnd.google-apps.presentation":       true,
}

// CategoryForMime derives a MimeCategory from a MIME type string.
// Parameters such as "; charset=utf-8" are ignored.
func CategoryForMime(mimeType string) MimeCategory {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "text/"):
		return CategoryDocument
	case documentMimeTypes[mt]:
		return CategoryDocument
	case strings.HasPrefix(mt, "application/vnd.openxmlformats-officedocument."):
		return CategoryDocument
	default:
		return CategoryOther
	}
}

// FileRecord is one inventoried object belonging to an owner.
// ExternalID is unique within an OwnerID. An empty ContentSignature or
// ParentID means the value is absent.
type FileRecord struct {
	OwnerID          string
	ExternalID       string
	Name             string
	SizeBytes        int64
	ContentSignature string
	MimeType         string
	MimeCategory     MimeCategory
	ModifiedAt       time.Time
	ParentID         string
}

// Fingerprint returns the record's grouping key and whether the record is
// eligible for duplicate detection at all.
func (r *FileRecord) Fingerprint() (FingerprintKey, bool) {
	if r.ContentSignature == "" || r.SizeBytes <= 0 {
		return FingerprintKey{}, false
	}
	return FingerprintKey{Signature: r.ContentSignature, SizeBytes: r.SizeBytes}, true
}

// newRecordFromListing converts a provider listing item into a FileRecord
// for ownerID.
func newRecordFromListing(ownerID string, item ListedItem) *FileRecord {
	size := item.SizeBytes
	if size < 0 {
		size = 0
	}
	return &FileRecord{
		OwnerID:          ownerID,
		ExternalID:       item.ExternalID,
		Name:             item.Name,
		SizeBytes:        size,
		ContentSignature: item.ContentSignature,
		MimeType:         item.MimeType,
		MimeCategory:     CategoryForMime(item.MimeType),
		ModifiedAt:       item.ModifiedAt,
		ParentID:         item.ParentID,
	}
}
