package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Extract unpacks archivePath (one of .tar.bz2, .conda, .tar.xz) into
// destDir, which is created if needed. The archive format is chosen by
// its recognized extension, the way the original implementation's
// package_handling switches on file suffix.
func Extract(archivePath, destDir string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		return extractTarBZip2(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".conda"):
		return extractConda(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return extractTarXZ(archivePath, destDir)
	default:
		return fmt.Errorf("fetch: %s: unrecognized archive extension", archivePath)
	}
}

func extractTarBZip2(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("fetch: opening %s: %w", archivePath, err)
	}
	defer f.Close()

	return extractTarStream(tar.NewReader(bzip2.NewReader(f)), destDir)
}

func extractTarXZ(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("fetch: opening %s: %w", archivePath, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("fetch: %s: creating xz reader: %w", archivePath, err)
	}
	return extractTarStream(tar.NewReader(xr), destDir)
}

// extractConda unpacks a .conda archive: a zip file containing two
// members, pkg-<name>.tar.zst (the payload) and info-<name>.tar.zst
// (the info/ directory), each a zstd-compressed tar.
func extractConda(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("fetch: opening %s: %w", archivePath, err)
	}
	defer zr.Close()

	var extractedAny bool
	for _, member := range zr.File {
		if !strings.HasSuffix(member.Name, ".tar.zst") {
			continue
		}
		if err := extractCondaMember(member, destDir); err != nil {
			return fmt.Errorf("fetch: %s: extracting %s: %w", archivePath, member.Name, err)
		}
		extractedAny = true
	}
	if !extractedAny {
		return fmt.Errorf("fetch: %s: no pkg-*.tar.zst or info-*.tar.zst member found", archivePath)
	}
	return nil
}

func extractCondaMember(member *zip.File, destDir string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	zr, err := zstd.NewReader(rc)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	return extractTarStream(tar.NewReader(zr), destDir)
}

// extractTarStream unpacks every entry of tr into destDir, honoring
// directories, symlinks, and regular files with their declared mode
// and verifying the number of bytes copied matches the header size.
func extractTarStream(tr *tar.Reader, destDir string) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		cleanName := strings.TrimPrefix(header.Name, "./")
		if cleanName == "" || cleanName == "." {
			continue
		}
		targetPath := filepath.Join(destDir, cleanName)
		if !strings.HasPrefix(targetPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry %q escapes destination directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", targetPath, err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("creating parent directory for symlink: %w", err)
			}
			os.Remove(targetPath)
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return fmt.Errorf("creating symlink %s -> %s: %w", targetPath, header.Linkname, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("creating file %s: %w", targetPath, err)
			}
			written, err := io.Copy(out, tr)
			out.Close()
			if err != nil {
				return fmt.Errorf("writing file %s: %w", targetPath, err)
			}
			if written != header.Size {
				return fmt.Errorf("file size mismatch for %s: expected %d, got %d", targetPath, header.Size, written)
			}
		}
	}
}
