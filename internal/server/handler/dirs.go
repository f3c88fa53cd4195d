package handler

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/remotely/internal/core/domain"
)

// dirRead lists d.Path recursively down to d.Depth levels (0 is unlimited).
// Entry paths are relative to d.Path and use forward slashes. Entries that
// cannot be read are reported in Errors instead of failing the listing.
func dirRead(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.Depth < 0 {
		return domain.ResponseData{}, fs.ErrInvalid
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	if !info.IsDir() {
		return domain.ResponseData{}, &fs.PathError{Op: "readdir", Path: d.Path, Err: fs.ErrInvalid}
	}

	root := filepath.Clean(d.Path)
	res := domain.ResponseData{Type: domain.ResDirEntries, Entries: []domain.DirEntry{}}

	err = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			res.Errors = append(res.Errors, err.Error())
			return nil
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		res.Entries = append(res.Entries, domain.DirEntry{
			Path:     rel,
			FileType: fileTypeOf(entry.Type()),
			Depth:    depth,
		})
		if entry.IsDir() && d.Depth > 0 && depth >= d.Depth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return domain.ResponseData{}, err
	}
	return res, nil
}

func dirCreate(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.All {
		return ok(), os.MkdirAll(d.Path, 0o755)
	}
	return ok(), os.Mkdir(d.Path, 0o755)
}
