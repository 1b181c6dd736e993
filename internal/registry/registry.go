// Package registry lists models already present in the download cache, so
// they can be served offline.
package registry

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"glowrs/internal/common/fsutil"
	"glowrs/internal/repo"
)

// Entry is one cached repository revision.
type Entry struct {
	Ref  repo.Ref
	Path string
	// Files are relative to Path, slash separated and sorted.
	Files []string
	Size  int64
}

// Has reports whether file is cached.
func (e Entry) Has(file string) bool {
	i := sort.SearchStrings(e.Files, file)
	return i < len(e.Files) && e.Files[i] == file
}

// Backends lists the backends that can load the entry without downloading.
func (e Entry) Backends() []string {
	var out []string
	if e.Has("tokenizer.json") && e.Has("config.json") && (e.Has("onnx/model.onnx") || e.Has("model.onnx")) {
		out = append(out, "onnx")
	}
	for _, f := range e.Files {
		if strings.HasSuffix(strings.ToLower(f), ".gguf") {
			out = append(out, "llama")
			break
		}
	}
	return out
}

// Scan walks a cache laid out as <dir>/<owner>/<model>/<revision>/..., the
// layout hub.Client writes. A missing dir yields no entries.
func Scan(dir string) ([]Entry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	owners, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, owner := range dirsOnly(owners) {
		models, err := os.ReadDir(filepath.Join(base, owner))
		if err != nil {
			return nil, err
		}
		for _, model := range dirsOnly(models) {
			revs, err := os.ReadDir(filepath.Join(base, owner, model))
			if err != nil {
				return nil, err
			}
			for _, rev := range dirsOnly(revs) {
				e, err := scanRevision(filepath.Join(base, owner, model, rev))
				if err != nil {
					return nil, err
				}
				if len(e.Files) == 0 {
					continue
				}
				e.Ref = repo.Ref{Name: owner + "/" + model, Revision: strings.ReplaceAll(rev, "--", "/")}
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.String() < out[j].Ref.String() })
	return out, nil
}

// Find returns the cached entry for ref.
func Find(dir string, ref repo.Ref) (Entry, bool, error) {
	entries, err := Scan(dir)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Ref.Name == ref.Name && e.Ref.Revision == ref.Revision {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func scanRevision(root string) (Entry, error) {
	e := Entry{Path: root}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Partial downloads are written to hidden temp files.
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		e.Files = append(e.Files, path.Clean(filepath.ToSlash(rel)))
		e.Size += info.Size()
		return nil
	})
	sort.Strings(e.Files)
	return e, err
}

func dirsOnly(entries []fs.DirEntry) []string {
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out
}
