// Package archive locates NRES pipeline tarballs on the engineering mount and
// extracts their summary report into a scoped temporary directory.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/lcogt/nres-sn/internal/domain"
)

// ErrReportNotFound is returned when a tarball holds no report PDF named
// after the tarball.
var ErrReportNotFound = errors.New("report pdf not found in archive")

const tarballSuffix = ".tar.gz"

// Store reads tarballs laid out as {mount}/{site}/{instrument}/{date}/specproc/*.tar.gz.
type Store struct {
	mount    string
	tempRoot string
}

// NewStore creates a Store rooted at mount. Reports are extracted below
// tempRoot, or the system temp directory when tempRoot is empty.
func NewStore(mount, tempRoot string) *Store {
	return &Store{mount: mount, tempRoot: tempRoot}
}

// Pattern returns the glob pattern matching a night's tarballs.
func (s *Store) Pattern(night domain.Night) string {
	return filepath.Join(s.mount, night.Site, night.Instrument, night.Date, "specproc", "*"+tarballSuffix)
}

// Locate returns the night's tarballs in lexical order. A night with no
// tarballs returns an empty slice and no error.
func (s *Store) Locate(night domain.Night) ([]string, error) {
	matches, err := filepath.Glob(s.Pattern(night))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", s.Pattern(night), err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Basename strips the directory and .tar.gz suffix from a tarball path.
func Basename(tarball string) string {
	return strings.TrimSuffix(filepath.Base(tarball), tarballSuffix)
}

// WithReport extracts the tarball's report PDF into a fresh temporary
// directory, calls fn with the extracted file path and removes the
// directory when fn returns, whatever the outcome.
func (s *Store) WithReport(tarball string, fn func(pdfPath string) error) (err error) {
	dir, err := os.MkdirTemp(s.tempRoot, "nressn-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil && err == nil {
			err = fmt.Errorf("remove temp dir: %w", rmErr)
		}
	}()

	pdfPath, err := extractReport(tarball, dir)
	if err != nil {
		return err
	}
	return fn(pdfPath)
}

// extractReport copies {base}/{base}.pdf (or {base}.pdf at the tarball root)
// into dir and returns the path of the copy.
func extractReport(tarball, dir string) (string, error) {
	base := Basename(tarball)
	want := map[string]bool{
		base + "/" + base + ".pdf": true,
		base + ".pdf":              true,
	}

	f, err := os.Open(tarball)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open gzip %s: %w", filepath.Base(tarball), err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%s: %w", filepath.Base(tarball), ErrReportNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("read tar %s: %w", filepath.Base(tarball), err)
		}
		if hdr.Typeflag != tar.TypeReg || !want[path.Clean(strings.TrimPrefix(hdr.Name, "./"))] {
			continue
		}

		dst := filepath.Join(dir, base+".pdf")
		if err := copyEntry(dst, tr); err != nil {
			return "", fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		return dst, nil
	}
}

func copyEntry(dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
