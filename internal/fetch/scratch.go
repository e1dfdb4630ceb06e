// Scratch-directory archive cache.
//
// Adapted from the teacher's compressed_io.go reader/writer helpers,
// narrowed to the one direction this package needs: re-compressing a
// downloaded archive with zstd before it lands on the scratch
// filesystem, so a crashed run can resume without re-fetching months
// it already has. The scratch directory remains safe to delete at any
// time between runs (§6); on a cache miss we simply re-download.
package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// scratchPath returns the cache path for one (instrument, variant,
// year, month) archive.
func scratchPath(baseDir, instrument, variant string, year, month int) string {
	return filepath.Join(baseDir, "scratch", instrument, variant, fmt.Sprintf("%04d-%02d.zip.zst", year, month))
}

// writeScratch zstd-compresses data and writes it atomically (via a
// temp file + rename) to the scratch cache path.
func writeScratch(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Namespaced per call (not just ".tmp") so two concurrent writers
	// for the same cache key never clobber each other's in-progress file.
	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readScratch returns the decompressed archive bytes, or (nil, false)
// if the scratch file does not exist.
func readScratch(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, false, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
