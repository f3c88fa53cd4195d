package handler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/remotely/internal/core/domain"
)

func requirePath(p, field string) error {
	if p == "" {
		return fmt.Errorf("%s: %w", field, errMissingField)
	}
	return nil
}

func ok() domain.ResponseData {
	return domain.ResponseData{Type: domain.ResOk}
}

// readFile reads path into memory, spending c's response budget. A file
// that does not fit fails with errTooLarge before anything is sent.
func readFile(c *call, path string) ([]byte, error) {
	if err := requirePath(path, "path"); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() && fi.Size() > c.budget {
		return nil, fmt.Errorf("%s is %d bytes, %d left in response: %w", path, fi.Size(), c.budget, errTooLarge)
	}
	// The file may grow after Stat.
	b, err := io.ReadAll(io.LimitReader(f, c.budget+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > c.budget {
		return nil, fmt.Errorf("%s exceeds the %d bytes left in response: %w", path, c.budget, errTooLarge)
	}
	c.budget -= int64(len(b))
	return b, nil
}

func fileRead(c *call, d domain.RequestData) (domain.ResponseData, error) {
	b, err := readFile(c, d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	return domain.ResponseData{Type: domain.ResBlob, Data: b}, nil
}

func fileReadText(c *call, d domain.RequestData) (domain.ResponseData, error) {
	b, err := readFile(c, d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	return domain.ResponseData{Type: domain.ResText, Text: strings.ToValidUTF8(string(b), "�")}, nil
}

func fileWrite(d domain.RequestData, appendTo bool) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.CreateParents {
		if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
			return domain.ResponseData{}, err
		}
	}

	data := d.Data
	if d.Type == domain.ReqFileWriteText || d.Type == domain.ReqFileAppendText {
		data = []byte(d.Text)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendTo {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(d.Path, flags, 0o644)
	if err != nil {
		return domain.ResponseData{}, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return domain.ResponseData{}, err
	}
	if err := f.Close(); err != nil {
		return domain.ResponseData{}, err
	}
	return ok(), nil
}

func remove(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.All {
		// RemoveAll succeeds on a missing path; report it like Remove does.
		if _, err := os.Lstat(d.Path); err != nil {
			return domain.ResponseData{}, err
		}
		return ok(), os.RemoveAll(d.Path)
	}
	return ok(), os.Remove(d.Path)
}

func rename(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if err := requirePath(d.Dst, "dst"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.CreateParents {
		if err := os.MkdirAll(filepath.Dir(d.Dst), 0o755); err != nil {
			return domain.ResponseData{}, err
		}
	}
	return ok(), os.Rename(d.Path, d.Dst)
}

func copyPath(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	if err := requirePath(d.Dst, "dst"); err != nil {
		return domain.ResponseData{}, err
	}
	if d.CreateParents {
		if err := os.MkdirAll(filepath.Dir(d.Dst), 0o755); err != nil {
			return domain.ResponseData{}, err
		}
	}

	info, err := os.Stat(d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	if !info.IsDir() {
		return ok(), copyFile(d.Path, d.Dst, info.Mode().Perm())
	}

	src, err := filepath.Abs(d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	dst, err := filepath.Abs(d.Dst)
	if err != nil {
		return domain.ResponseData{}, err
	}
	if dst == src || strings.HasPrefix(dst, src+string(filepath.Separator)) {
		return domain.ResponseData{}, fmt.Errorf("copy %s into itself: %w", d.Path, fs.ErrInvalid)
	}
	return ok(), copyDir(src, dst)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exists(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	_, err := os.Stat(d.Path)
	switch {
	case err == nil:
		return domain.ResponseData{Type: domain.ResExists, Exists: true}, nil
	case errors.Is(err, fs.ErrNotExist):
		return domain.ResponseData{Type: domain.ResExists, Exists: false}, nil
	default:
		return domain.ResponseData{}, err
	}
}

func metadata(d domain.RequestData) (domain.ResponseData, error) {
	if err := requirePath(d.Path, "path"); err != nil {
		return domain.ResponseData{}, err
	}
	info, err := os.Lstat(d.Path)
	if err != nil {
		return domain.ResponseData{}, err
	}
	return domain.ResponseData{
		Type: domain.ResMetadata,
		Metadata: &domain.Metadata{
			FileType: fileTypeOf(info.Mode()),
			Len:      info.Size(),
			ReadOnly: info.Mode().Perm()&0o222 == 0,
			Modified: info.ModTime().UnixMilli(),
		},
	}, nil
}

func fileTypeOf(m fs.FileMode) domain.FileType {
	switch {
	case m&fs.ModeSymlink != 0:
		return domain.FileTypeSymlink
	case m.IsDir():
		return domain.FileTypeDir
	default:
		return domain.FileTypeFile
	}
}
