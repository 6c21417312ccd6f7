package fetch

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

type member struct {
	name     string
	typeflag byte
	content  string
}

func buildTarXZ(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xzw)
	for _, m := range members {
		hdr := &tar.Header{
			Name:     m.name,
			Typeflag: m.typeflag,
			Mode:     0o644,
			Size:     int64(len(m.content)),
		}
		if m.typeflag == tar.TypeDir {
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", m.name, err)
		}
		if m.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(m.content)); err != nil {
				t.Fatalf("tar body %s: %v", m.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatalf("close xz: %v", err)
	}
	return buf.Bytes()
}

func serveBytes(t *testing.T, body []byte, hits *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTarXZ_ExtractsArchive(t *testing.T) {
	archive := buildTarXZ(t, []member{
		{name: "quickjs", typeflag: tar.TypeDir},
		{name: "quickjs/quickjs.c", typeflag: tar.TypeReg, content: "/* core */\n"},
		{name: "quickjs/qjs.c", typeflag: tar.TypeReg, content: "int main(void) { return 0; }\n"},
	})
	srv := serveBytes(t, archive, nil)

	dest := filepath.Join(t.TempDir(), "vendor")
	if err := TarXZ(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "quickjs", "qjs.c"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "int main(void) { return 0; }\n" {
		t.Errorf("extracted content altered: %q", got)
	}
}

func TestTarXZ_SkipsPopulatedDest(t *testing.T) {
	var hits int
	srv := serveBytes(t, nil, &hits)

	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "quickjs.c"), []byte("cached\n"), 0o644); err != nil {
		t.Fatalf("populate dest: %v", err)
	}

	if err := TarXZ(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("populated dest must be a no-op: %v", err)
	}
	if hits != 0 {
		t.Errorf("server hit %d times for a populated cache, want 0", hits)
	}
}

func TestTarXZ_RejectsEscapingMember(t *testing.T) {
	archive := buildTarXZ(t, []member{
		{name: "../evil.c", typeflag: tar.TypeReg, content: "nope"},
	})
	srv := serveBytes(t, archive, nil)

	dest := filepath.Join(t.TempDir(), "vendor")
	if err := TarXZ(context.Background(), srv.URL, dest); err == nil {
		t.Error("archive member escaping the destination was accepted")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil.c")); !os.IsNotExist(err) {
		t.Error("escaping member written outside the destination")
	}
}

func TestExecutable_DownloadsOnceAndMarksRunnable(t *testing.T) {
	var hits int
	srv := serveBytes(t, []byte("#!/bin/sh\nexit 0\n"), &hits)

	dest := filepath.Join(t.TempDir(), "toolchain", "cc")
	if err := Executable(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("download: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("downloaded tool not executable: %v", info.Mode())
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}

	// A second call finds the cached file and never touches the network.
	if err := Executable(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("cached download: %v", err)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1", hits)
	}
}

func TestExecutable_TruncatedDownloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.Write([]byte("short"))
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "cc")
	if err := Executable(context.Background(), srv.URL, dest); err == nil {
		t.Fatal("truncated download accepted")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("truncated download left a file at dest")
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("truncated download left a partial file")
	}
}
