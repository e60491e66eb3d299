package provider

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dupsweep/internal/fs"
	"dupsweep/internal/sweep"
)

// TrashDirName is the directory under a local root that receives soft-deleted files.
const TrashDirName = ".dupsweep-trash"

// LocalProvider exposes a directory tree as a sweep.Provider.
// External ids are slash-separated paths relative to the root. Files are
// fingerprinted by SHA-256 of their contents; directories are listed as
// folder records so the tree view can be rebuilt. Soft deletion moves a file
// into <root>/.dupsweep-trash keeping its relative path.
type LocalProvider struct {
	name     string
	root     string
	trashDir string
	matcher  *fs.IgnoreMatcher
	pageSize int

	// mu guards entries, the walk captured when a listing starts.
	mu      sync.Mutex
	entries []fs.Entry
}

// NewLocalProvider creates a provider for the directory at root.
// Patterns from <root>/.dupsweepignore are applied after ignore.
func NewLocalProvider(name, root string, ignore []string, pageSize int) (*LocalProvider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", abs)
	}

	filePatterns, err := fs.ParseIgnoreFile(filepath.Join(abs, fs.IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := fs.NewIgnoreMatcher(ignore)
	matcher.Add(filePatterns...)

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &LocalProvider{
		name:     name,
		root:     abs,
		trashDir: filepath.Join(abs, TrashDirName),
		matcher:  matcher,
		pageSize: pageSize,
	}, nil
}

// Name returns the configured source name.
func (p *LocalProvider) Name() string {
	return p.name
}

// Root returns the absolute directory being scanned.
func (p *LocalProvider) Root() string {
	return p.root
}

// List returns one page of the tree. The empty token walks the tree afresh;
// later tokens are offsets into that walk.
func (p *LocalProvider) List(ctx context.Context, pageToken string) (*sweep.ListPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}
	if pageToken == "" || p.entries == nil {
		entries, err := fs.Walk(p.root, p.matcher, TrashDirName)
		if err != nil {
			return nil, err
		}
		p.entries = entries
	}

	if offset > len(p.entries) {
		offset = len(p.entries)
	}
	end := offset + p.pageSize
	if end > len(p.entries) {
		end = len(p.entries)
	}

	page := &sweep.ListPage{Items: make([]sweep.ListedItem, 0, end-offset)}
	for _, e := range p.entries[offset:end] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := p.listedItem(e)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	if end < len(p.entries) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (p *LocalProvider) listedItem(e fs.Entry) (sweep.ListedItem, error) {
	item := sweep.ListedItem{
		ExternalID: e.RelPath,
		Name:       path.Base(e.RelPath),
		ModifiedAt: e.ModTime.UTC(),
	}
	if parent := path.Dir(e.RelPath); parent != "." {
		item.ParentID = parent
	}

	if e.IsDir {
		item.MimeType = sweep.FolderMimeType
		return item, nil
	}

	sum, err := fs.HashFile(p.abs(e.RelPath))
	if err != nil {
		return sweep.ListedItem{}, err
	}
	item.SizeBytes = e.Size
	item.ContentSignature = sum
	item.MimeType = mime.TypeByExtension(path.Ext(e.RelPath))
	return item, nil
}

// Status reports whether the file is still in place or already in the trash.
func (p *LocalProvider) Status(ctx context.Context, externalID string) (*sweep.ItemStatus, error) {
	if err := checkLocalID(externalID); err != nil {
		return nil, err
	}

	info, err := os.Lstat(p.abs(externalID))
	if err == nil {
		owner, _ := fs.OwnerName(info)
		return &sweep.ItemStatus{Owner: owner}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", externalID, err)
	}

	info, err = os.Lstat(p.trashPath(externalID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", externalID)
		}
		return nil, fmt.Errorf("stat trashed %s: %w", externalID, err)
	}
	owner, _ := fs.OwnerName(info)
	return &sweep.ItemStatus{IsTrashed: true, Owner: owner}, nil
}

// SoftDelete moves the file into the trash directory.
func (p *LocalProvider) SoftDelete(ctx context.Context, externalID string) error {
	if err := checkLocalID(externalID); err != nil {
		return err
	}

	src := p.abs(externalID)
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", externalID, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", externalID)
	}

	dst := p.trashPath(externalID)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating trash directory: %w", err)
	}
	// An earlier trashed copy keeps its place; this one gets a numbered name.
	for i := 1; ; i++ {
		if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
			break
		}
		dst = p.trashPath(externalID) + "." + strconv.Itoa(i)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to trash: %w", externalID, err)
	}
	return nil
}

// Identity returns the login name of the user running the process.
func (p *LocalProvider) Identity(ctx context.Context) (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("looking up current user: %w", err)
	}
	return u.Username, nil
}

func (p *LocalProvider) abs(externalID string) string {
	return filepath.Join(p.root, filepath.FromSlash(externalID))
}

func (p *LocalProvider) trashPath(externalID string) string {
	return filepath.Join(p.trashDir, filepath.FromSlash(externalID))
}

// checkLocalID rejects ids that would escape the root or point into the trash.
func checkLocalID(externalID string) error {
	if externalID == "" || !filepath.IsLocal(filepath.FromSlash(externalID)) {
		return fmt.Errorf("invalid file id %q", externalID)
	}
	if externalID == TrashDirName || strings.HasPrefix(externalID, TrashDirName+"/") {
		return fmt.Errorf("file id %q is inside the trash", externalID)
	}
	return nil
}

// Compile-time check that LocalProvider implements sweep.Provider interface
var _ sweep.Provider = (*LocalProvider)(nil)
