// Package archive builds the zip containers on either side of the decompiler:
// the .sb3 project archive it consumes and the zip of its output directory.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zip"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// WriteProject writes an .sb3 archive at path holding the raw manifest as
// project.json plus one entry per asset, named by its key. Any existing file
// at path is truncated. Entries are written in sorted key order.
func WriteProject(path string, manifest []byte, assets map[scratch.AssetKey][]byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return scratch.NewError(scratch.KindArchiveWrite, "", fmt.Errorf("create archive: %w", err))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = scratch.NewError(scratch.KindArchiveWrite, "", fmt.Errorf("close archive: %w", closeErr))
		}
	}()

	zw := zip.NewWriter(f)
	if err := writeEntry(zw, scratch.ManifestEntryName, manifest); err != nil {
		return scratch.NewError(scratch.KindArchiveWrite, scratch.ManifestEntryName, err)
	}
	keys := make([]scratch.AssetKey, 0, len(assets))
	for key := range assets {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := writeEntry(zw, string(key), assets[key]); err != nil {
			return scratch.NewError(scratch.KindArchiveWrite, string(key), err)
		}
	}
	if err := zw.Close(); err != nil {
		return scratch.NewError(scratch.KindArchiveWrite, "", fmt.Errorf("finalize archive: %w", err))
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// ZipDir recursively archives srcDir into a zip at dstPath, with entry names
// relative to srcDir. Empty directories are kept; non-regular files are
// skipped.
func ZipDir(srcDir, dstPath string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("stat output directory: %w", err))
	}
	if !info.IsDir() {
		return scratch.NewError(scratch.KindRepackage, "", errors.New("output path is not a directory"))
	}

	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("create output archive: %w", err))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("close output archive: %w", closeErr))
		}
	}()

	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		return addPath(zw, path, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		return scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("archive output directory: %w", walkErr))
	}
	if err := zw.Close(); err != nil {
		return scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("finalize output archive: %w", err))
	}
	return nil
}

func addPath(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	if !d.IsDir() && !d.Type().IsRegular() {
		return nil
	}
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header %s: %w", name, err)
	}
	hdr.Name = name
	if d.IsDir() {
		hdr.Name += "/"
		_, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create dir entry %s: %w", name, err)
		}
		return nil
	}
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	src, err := os.Open(path) // #nosec G304 -- path comes from walking our own workspace.
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close() //nolint:errcheck // read-only handle
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}
