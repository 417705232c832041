// Package archiveindex builds content-addressed entry indexes from a ZIP
// archive and computes the diff between two indexes. It also reads single
// entries and writes archives back to disk (PackDir, WriteArchiveAtomic) for
// the server-side reconciler. Nothing in it touches the network.
package archiveindex

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Build walks every non-directory entry of the archive at path in archive
// order, hashes its payload with SHA-256, and returns path -> lower-hex
// digest. Entry path collisions resolve last-writer-wins, mirroring ZIP's
// own duplicate-entry semantics. The archive is never partially indexed: any
// read error aborts and returns an error, not a partial Index.
func Build(path string) (types.Index, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	return buildFromFiles(r.File)
}

// BuildFromReader is Build's in-memory counterpart, for an archive held in
// memory rather than on disk.
func BuildFromReader(r io.ReaderAt, size int64) (types.Index, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return buildFromFiles(zr.File)
}

func buildFromFiles(files []*zip.File) (types.Index, error) {
	idx := make(types.Index, len(files))
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		digest, err := digestEntry(f)
		if err != nil {
			return nil, fmt.Errorf("hash entry %s: %w", f.Name, err)
		}
		idx[normalizePath(f.Name)] = digest
	}
	return idx, nil
}

func digestEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalizePath forces forward slashes, matching ZIP's on-wire path
// convention regardless of the platform that produced the archive.
func normalizePath(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' {
			out[i] = '/'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

// ReadEntry extracts the raw payload of a single entry, used by the
// preflight pipeline to estimate upload size and by the client to build the
// inline/chunked upload request bodies.
func ReadEntry(path, entryPath string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if normalizePath(f.Name) != entryPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", entryPath, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("entry not found: %s", entryPath)
}

// Entries returns every non-directory entry's path and payload, in archive
// order. Used when the full archive body must be read into memory (the
// server-side reconciler materializing a scratch directory).
func Entries(path string) ([]types.Entry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	return entriesFromFiles(r.File)
}

// EntriesFromReader is Entries' in-memory counterpart, used by the agent's
// full-replace path when the archive arrives as an uploaded byte slice
// rather than a file already on disk.
func EntriesFromReader(r io.ReaderAt, size int64) ([]types.Entry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return entriesFromFiles(zr.File)
}

func entriesFromFiles(files []*zip.File) ([]types.Entry, error) {
	var entries []types.Entry
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		h := sha256.Sum256(data)
		entries = append(entries, types.Entry{
			Path:   normalizePath(f.Name),
			Digest: hex.EncodeToString(h[:]),
			Data:   data,
		})
	}
	return entries, nil
}
