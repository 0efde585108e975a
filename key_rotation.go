package binderfs

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/absfs/absfs"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// DefaultRewrapInclude selects every sidecar in the tree
const DefaultRewrapInclude = "**/*" + SidecarExt

// DefaultVerifyInclude selects every file in the tree
const DefaultVerifyInclude = "**"

// stagingPrefix names the directories RewrapTree creates when no destination
// filesystem is given
const stagingPrefix = ".staging-"

// RewrapTreeOptions controls RewrapTree
type RewrapTreeOptions struct {
	// Root is the directory to walk. Defaults to "/"
	Root string

	// Include is a doublestar pattern matched against paths relative to Root.
	// Defaults to DefaultRewrapInclude. Matching .json files are re-encrypted
	// in full; matching .enc files only get a new wrapped DEK.
	Include string

	// DestKey is the key the copies must be readable with
	DestKey *ConversationKey

	// DestFS receives the copies at the same paths. When nil, copies go to a
	// new staging directory on the session filesystem
	DestFS absfs.FileSystem

	// DryRun lists the files that would be rewrapped without writing anything
	DryRun bool
}

// RewrapFailure records one file that could not be rewrapped
type RewrapFailure struct {
	Path string
	Err  error
}

// RewrapReport is the outcome of RewrapTree
type RewrapReport struct {
	Rewrapped  []string
	Failed     []RewrapFailure
	StagingDir string
}

// RewrapTree copies every matching file under Root so that it is readable with
// DestKey. Per-file failures are collected in the report and do not stop the walk.
func (s *Session) RewrapTree(opts RewrapTreeOptions) (*RewrapReport, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if opts.DestKey == nil {
		return nil, &ValidationError{Field: "DestKey", Message: "destination key cannot be nil", Err: ErrInvalidKey}
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.Include == "" {
		opts.Include = DefaultRewrapInclude
	}
	if !doublestar.ValidatePattern(opts.Include) {
		return nil, NewValidationError("Include", opts.Include, "invalid glob pattern")
	}

	files, err := matchFiles(s.io.FileSystem(), opts.Root, opts.Include)
	if err != nil {
		return nil, err
	}

	report := &RewrapReport{}
	if opts.DryRun {
		report.Rewrapped = files
		s.logger.Info("rewrap dry run", "root", opts.Root, "files", len(files))
		return report, nil
	}

	destFS := opts.DestFS
	destRoot := "/"
	if destFS == nil {
		destFS = s.io.FileSystem()
		destRoot = "/" + stagingPrefix + uuid.NewString()
		report.StagingDir = destRoot
	}

	var mu sync.Mutex
	err = fanOut(s.cfg.Workers, len(files), func(i int) error {
		src := files[i]
		dest := path.Join(destRoot, src)

		var err error
		if strings.HasSuffix(src, SidecarExt) {
			err = s.io.RewrapSidecar(src, dest, s.key, opts.DestKey, destFS)
		} else {
			err = s.io.RewrapJSON(src, dest, s.key, opts.DestKey, destFS)
		}

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("rewrap failed", "path", src, "error", err)
			report.Failed = append(report.Failed, RewrapFailure{Path: src, Err: err})
			return nil
		}
		report.Rewrapped = append(report.Rewrapped, src)
		return nil
	})
	if err != nil {
		return report, err
	}

	sort.Strings(report.Rewrapped)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	s.logger.Info("rewrap finished", "root", opts.Root, "rewrapped", len(report.Rewrapped), "failed", len(report.Failed), "staging", report.StagingDir)
	return report, nil
}

// VerifyTree decrypts every matching document, metadata file and sidecar under
// root and returns the paths that fail
func (s *Session) VerifyTree(root, include string) ([]string, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if root == "" {
		root = "/"
	}
	if include == "" {
		include = DefaultVerifyInclude
	}
	if !doublestar.ValidatePattern(include) {
		return nil, NewValidationError("include", include, "invalid glob pattern")
	}

	files, err := matchFiles(s.io.FileSystem(), root, include)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var failed []string
	err = fanOut(s.cfg.Workers, len(files), func(i int) error {
		if err := s.verifyFile(files[i]); err != nil {
			s.logger.Warn("verification failed", "path", files[i], "error", err)
			mu.Lock()
			failed = append(failed, files[i])
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(failed)
	s.logger.Info("verification finished", "root", root, "files", len(files), "failed", len(failed))
	return failed, nil
}

func (s *Session) verifyFile(p string) error {
	switch {
	case strings.HasSuffix(p, SidecarExt):
		_, err := s.io.ReadSidecar(p)
		return err
	case path.Base(p) == FolderMetaName || path.Base(p) == PatientInfoName:
		var meta map[string]any
		return s.io.ReadJSON(p, &meta)
	default:
		_, err := s.io.ReadDocument(p)
		return err
	}
}

// matchFiles walks root and returns the .json and .enc files whose path
// relative to root matches include. Hidden directories and hidden files other
// than folder metadata are skipped.
func matchFiles(base absfs.FileSystem, root, include string) ([]string, error) {
	if err := ValidateFilePath(root); err != nil {
		return nil, err
	}
	root = cleanPath(root)

	var out []string
	var walk func(dir string) error
	walk = func(dir string) error {
		f, err := base.Open(dir)
		if err != nil {
			return wrapFSError("readdir", dir, err)
		}
		names, err := f.Readdirnames(-1)
		f.Close()
		if err != nil {
			return wrapFSError("readdir", dir, err)
		}
		sort.Strings(names)

		for _, name := range names {
			p := path.Join(dir, name)
			info, err := base.Stat(p)
			if err != nil {
				return wrapFSError("stat", p, err)
			}
			if info.IsDir() {
				if strings.HasPrefix(name, ".") {
					continue
				}
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			if strings.HasPrefix(name, ".") && name != FolderMetaName {
				continue
			}
			if !strings.HasSuffix(name, SidecarExt) && !strings.HasSuffix(name, DocumentExt) {
				continue
			}

			rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
			ok, err := doublestar.Match(include, rel)
			if err != nil {
				return fmt.Errorf("invalid include pattern %q: %w", include, err)
			}
			if ok {
				out = append(out, p)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
