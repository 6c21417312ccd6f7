// Package fetch acquires the build dependencies: the retargetable C
// compiler toolchain and the vendored interpreter source archive. Both are
// downloaded once into the cache directory and reused by later runs.
package fetch

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// TarXZ downloads a .tar.xz archive and extracts it under destDir. If
// destDir already exists and is non-empty the download is skipped, so a
// populated cache costs nothing.
func TarXZ(ctx context.Context, url, destDir string) error {
	if populated(destDir) {
		return nil
	}

	resp, err := get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := &countingReader{r: resp.Body}
	xzr, err := xz.NewReader(body)
	if err != nil {
		return fmt.Errorf("open xz stream from %s: %w", url, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			// Drain the trailing archive padding so the byte count covers
			// the whole response.
			if _, err := io.Copy(io.Discard, body); err != nil {
				return fmt.Errorf("read archive from %s: %w", url, err)
			}
			return verifySize(url, body.n, resp.ContentLength)
		}
		if err != nil {
			return fmt.Errorf("read archive from %s: %w", url, err)
		}

		path, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, path); err != nil && !os.IsExist(err) {
				return err
			}
		}
	}
}

// Executable downloads a single executable to dest and marks it runnable.
func Executable(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	resp, err := get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := verifySize(url, n, resp.ContentLength); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// verifySize checks the received byte count against the advertised
// Content-Length. Responses without a known length (-1) pass.
func verifySize(url string, got, want int64) error {
	if want >= 0 && got != want {
		return fmt.Errorf("fetch %s: truncated download: got %d bytes, want %d", url, got, want)
	}
	return nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: HTTP %s", url, resp.Status)
	}
	return resp, nil
}

// securePath joins an archive member name onto destDir, rejecting absolute
// names and parent-directory escapes.
func securePath(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member escapes destination: %q", name)
	}
	return filepath.Join(destDir, clean), nil
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
