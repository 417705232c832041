package archiveindex

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PackDir recursively zips the contents of dir into a new archive at
// destPath, replacing anything already there. The archive is assembled in a
// temporary file alongside destPath first and only then renamed into place,
// so a reader that opens destPath concurrently always sees either the
// previous archive or the complete new one, never a partial write.
func PackDir(dir, destPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".archive-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	zw := zip.NewWriter(tmp)
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(normalizePath(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	closeErr := zw.Close()
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("finalize archive: %w", closeErr)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("swap archive into place: %w", err)
	}
	return nil
}

// WriteArchiveAtomic writes data to destPath via the same temp-file-then-
// rename sequence PackDir uses, for callers that already have a complete
// archive body (a full-upload request) rather than a directory to pack.
func WriteArchiveAtomic(data []byte, destPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".archive-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("swap archive into place: %w", err)
	}
	return nil
}
