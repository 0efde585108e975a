package binderfs

import (
	"encoding/json"
	"log/slog"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

// maxTitleRunes bounds titles taken from the first line of a body
const maxTitleRunes = 60

// DirItem is one element of a directory listing: a *Folder or an *Entry
type DirItem interface {
	// ItemName returns the file name the item sorts by
	ItemName() string

	dirItem()
}

// FolderMeta is the decrypted content of a folder's .meta.json
type FolderMeta struct {
	DisplayName string `json:"displayName,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Folder is a directory with at least one visible child
type Folder struct {
	Name         string      `json:"name"`
	RelativePath string      `json:"relativePath"`
	Meta         *FolderMeta `json:"meta,omitempty"`
	ChildCount   int         `json:"childCount"`
}

func (f *Folder) ItemName() string { return f.Name }
func (*Folder) dirItem()           {}

// MarshalJSON adds the "kind" discriminator
func (f Folder) MarshalJSON() ([]byte, error) {
	type plain Folder
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{"folder", plain(f)})
}

// Entry is an encrypted document. Preview is nil when the document could not
// be decrypted or parsed.
type Entry struct {
	Name         string   `json:"name"`
	RelativePath string   `json:"relativePath"`
	Preview      *Preview `json:"preview"`
}

func (e *Entry) ItemName() string { return e.Name }
func (*Entry) dirItem()           {}

func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{"entry", plain(e)})
}

// Preview is the summary of a document shown in listings
type Preview struct {
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Format      string   `json:"format,omitempty"`
	HasChildren bool     `json:"hasChildren"`
}

// DirectoryReader lists a binder directory, decrypting previews and folder
// metadata through an EncryptedIO
type DirectoryReader struct {
	io      *EncryptedIO
	workers int
	logger  *slog.Logger
}

// NewDirectoryReader creates a reader. workers bounds concurrent child decrypts.
func NewDirectoryReader(eio *EncryptedIO, workers int, logger *slog.Logger) *DirectoryReader {
	if logger == nil {
		logger = discardLogger()
	}
	return &DirectoryReader{io: eio, workers: workers, logger: logger}
}

// ReadDirectory lists dir: folders first, then entries, each group sorted by
// file name. Hidden files, sidecars, empty folders and (at the root)
// patient-info.json are left out.
func (r *DirectoryReader) ReadDirectory(dir string) ([]DirItem, error) {
	if err := ValidateFilePath(dir); err != nil {
		return nil, err
	}
	dir = cleanPath(dir)

	names, err := r.readNames(dir)
	if err != nil {
		return nil, err
	}

	isRoot := dir == "/"
	var candidates []string
	for _, name := range names {
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, SidecarExt) {
			continue
		}
		if isRoot && name == PatientInfoName {
			continue
		}
		candidates = append(candidates, name)
	}

	items := make([]DirItem, len(candidates))
	err = fanOut(r.workers, len(candidates), func(i int) error {
		item, err := r.readItem(dir, candidates[i])
		if err != nil {
			return err
		}
		items[i] = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := items[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out, nil
}

// readItem returns nil for names that are not listed
func (r *DirectoryReader) readItem(dir, name string) (DirItem, error) {
	p := path.Join(dir, name)
	info, err := r.io.FileSystem().Stat(p)
	if err != nil {
		return nil, wrapFSError("stat", p, err)
	}

	if info.IsDir() {
		return r.readFolder(p, name)
	}
	if !strings.HasSuffix(name, DocumentExt) {
		return nil, nil
	}

	preview := downgradePreview(r.logger, p)(r.previewFor(p))
	return &Entry{Name: name, RelativePath: relativePath(p), Preview: preview}, nil
}

func (r *DirectoryReader) readFolder(p, name string) (DirItem, error) {
	children, err := r.readNames(p)
	if err != nil {
		return nil, err
	}

	visible := false
	hasMeta := false
	count := 0
	for _, child := range children {
		if child == FolderMetaName {
			visible = true
			hasMeta = true
			continue
		}
		if strings.HasPrefix(child, ".") {
			continue
		}
		visible = true
		if !strings.HasSuffix(child, SidecarExt) {
			count++
		}
	}
	if !visible {
		return nil, nil
	}

	folder := &Folder{Name: name, RelativePath: relativePath(p), ChildCount: count}
	if hasMeta {
		metaPath := path.Join(p, FolderMetaName)
		folder.Meta = downgradeMeta(r.logger, metaPath)(r.metaFor(metaPath))
	}
	return folder, nil
}

func (r *DirectoryReader) readNames(dir string) ([]string, error) {
	f, err := r.io.FileSystem().Open(dir)
	if err != nil {
		return nil, wrapFSError("readdir", dir, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, wrapFSError("readdir", dir, err)
	}
	return names, nil
}

func (r *DirectoryReader) previewFor(p string) (*Preview, error) {
	doc, err := r.io.ReadDocument(p)
	if err != nil {
		return nil, err
	}
	return PreviewOf(doc), nil
}

func (r *DirectoryReader) metaFor(p string) (*FolderMeta, error) {
	var meta FolderMeta
	if err := r.io.ReadJSON(p, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// downgradePreview is the listing policy for unreadable entries: the error is
// logged and the entry is listed without a preview. Opening the entry directly
// still reports the error.
func downgradePreview(logger *slog.Logger, p string) func(*Preview, error) *Preview {
	return func(preview *Preview, err error) *Preview {
		if err != nil {
			logger.Warn("entry listed without preview", "path", p, "error", err)
			return nil
		}
		return preview
	}
}

// downgradeMeta applies the same policy to folder metadata
func downgradeMeta(logger *slog.Logger, p string) func(*FolderMeta, error) *FolderMeta {
	return func(meta *FolderMeta, err error) *FolderMeta {
		if err != nil {
			logger.Warn("folder listed without metadata", "path", p, "error", err)
			return nil
		}
		return meta
	}
}

// PreviewOf summarizes a document for listings
func PreviewOf(doc *MedicalDocument) *Preview {
	return &Preview{
		Title:       titleOf(doc),
		Type:        doc.Metadata.Type,
		Created:     doc.Metadata.Created,
		Updated:     doc.Metadata.Updated,
		Provider:    doc.Metadata.Provider,
		Tags:        cloneSlice(doc.Metadata.Tags),
		Format:      doc.Metadata.Format,
		HasChildren: len(doc.Children) > 0,
	}
}

// titleOf returns the first "# " heading of the body, else its first non-blank
// line, else the document type
func titleOf(doc *MedicalDocument) string {
	_, body, err := SplitFrontMatter(doc.Value)
	if err != nil {
		body = doc.Value
	}

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for _, line := range lines {
		if heading, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			if heading = strings.TrimSpace(heading); heading != "" {
				return heading
			}
		}
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, maxTitleRunes)
		}
	}
	return doc.Metadata.Type
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func sortItems(items []DirItem) {
	sort.SliceStable(items, func(i, j int) bool {
		_, fi := items[i].(*Folder)
		_, fj := items[j].(*Folder)
		if fi != fj {
			return fi
		}
		return items[i].ItemName() < items[j].ItemName()
	})
}

// cloneItems copies a listing so callers cannot mutate cached values
func cloneItems(items []DirItem) []DirItem {
	out := make([]DirItem, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case *Folder:
			f := *v
			if v.Meta != nil {
				meta := *v.Meta
				f.Meta = &meta
			}
			out[i] = &f
		case *Entry:
			e := *v
			if v.Preview != nil {
				p := *v.Preview
				p.Tags = cloneSlice(v.Preview.Tags)
				e.Preview = &p
			}
			out[i] = &e
		}
	}
	return out
}
