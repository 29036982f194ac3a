// Package archive unpacks game packages (APK/zip or tar.gz) into an install
// directory.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// ErrUnsupportedArchive is returned for archives that are neither zip nor gzip.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// Extractor unpacks archives.
type Extractor struct {
	log *zap.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log}
}

// Extract unpacks archivePath into destDir, detecting the format from the
// file header. ctx is checked between entries.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4)
	n, _ := io.ReadFull(f, header)
	header = header[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	switch {
	case bytes.HasPrefix(header, zipMagic):
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat archive: %w", err)
		}
		err = e.extractZip(ctx, f, info.Size(), destDir)
		if err == nil {
			e.log.Debug("extracted zip", zap.String("archive", archivePath), zap.String("dest", destDir))
		}
		return err
	case bytes.HasPrefix(header, gzipMagic):
		err := e.extractTarGz(ctx, f, destDir)
		if err == nil {
			e.log.Debug("extracted tar.gz", zap.String("archive", archivePath), zap.String("dest", destDir))
		}
		return err
	default:
		return ErrUnsupportedArchive
	}
}

// safeJoin joins name under destDir, rejecting paths that escape it.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

func (e *Extractor) extractZip(ctx context.Context, r io.ReaderAt, size int64, destDir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("read zip: %w", err)
	}

	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			// APKs never carry symlinks; skip rather than trust them
			continue
		default:
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", file.Name, err)
			}
			err = writeFile(target, rc, filePerm(mode))
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Extractor) extractTarGz(ctx context.Context, r io.Reader, destDir string) error {
	gzipReader, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tarReader, filePerm(os.FileMode(header.Mode))); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("illegal symlink target: %s -> %s", header.Name, header.Linkname)
			}
			if _, err := safeJoin(destDir, filepath.Join(filepath.Dir(header.Name), header.Linkname)); err != nil {
				return fmt.Errorf("illegal symlink target: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}
}

// filePerm keeps the archive's permission bits but always grants the owner
// read and write.
func filePerm(mode os.FileMode) os.FileMode {
	return mode.Perm() | 0o600
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	// OpenFile applies umask; set the exact bits so execute flags survive
	return os.Chmod(target, perm)
}
