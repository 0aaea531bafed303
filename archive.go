// Package sqpack resolves logical SqPack paths ("music/ffxiv/bgm_system_title.scd")
// against an on-disk game installation's sqpack directory and returns a
// streaming decoder over the matched file's contents.
//
// It is read-only: there is no support for writing, patching, or
// authoring archives. Callers needing repeated lookups against the same
// index should build a sqindex.Cache once with OpenIndexCache and pass
// it to OpenWithCache, which skips the linear index scan Open otherwise
// performs on every call.
package sqpack

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sqpack-go/sqpack/internal/bufsource"
	"github.com/sqpack-go/sqpack/sqdata"
	"github.com/sqpack-go/sqpack/sqindex"
	"github.com/sqpack-go/sqpack/sqpath"
)

// Open resolves logicalPath against the index file under sqpackDir and
// returns a stream over its decoded contents. Each call opens and
// re-scans the relevant index file; callers making many lookups against
// the same category/expansion should prefer OpenWithCache.
func Open(logicalPath, sqpackDir string) (*sqdata.BlockStream, error) {
	indexPath, ok := sqpath.PhysicalIndexFilename(logicalPath, sqpackDir)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, fmt.Errorf("%w: unrecognised category or expansion", ErrNotFound))
	}
	hashes, ok := sqpath.IndexHashOf(logicalPath)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, fmt.Errorf("%w: path has no folder/file separator", ErrNotFound))
	}
	slog.Debug("sqpack: resolving path", "path", logicalPath, "index", indexPath, "folderHash", hashes.FolderHash, "fileHash", hashes.FileHash)

	indexSrc, err := bufsource.Open(indexPath)
	if err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}
	defer indexSrc.Close()

	reader, err := sqindex.NewReader(indexSrc)
	if err != nil {
		return nil, wrapIndexError(logicalPath, err)
	}

	folders, err := reader.Folders()
	if err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}
	var target sqindex.FileEntry
	found := false
	for folders.Next() {
		folder := folders.Entry()
		if folder.FolderHash != hashes.FolderHash {
			continue
		}
		files, err := reader.FolderContents(folder)
		if err != nil {
			return nil, newError(KindIO, logicalPath, err)
		}
		for files.Next() {
			entry := files.Entry()
			if entry.FileHash == hashes.FileHash {
				target = entry
				found = true
				break
			}
		}
		if err := files.Err(); err != nil {
			return nil, newError(KindIO, logicalPath, err)
		}
		break
	}
	if err := folders.Err(); err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}
	if !found {
		return nil, newError(KindNotFound, logicalPath, ErrNotFound)
	}

	return openDataEntry(logicalPath, sqpackDir, target)
}

// OpenIndexCache builds a sqindex.Cache over the index file that
// logicalPath's category/expansion/pack-number resolve to, for repeated
// lookups against that same physical index via OpenWithCache.
func OpenIndexCache(logicalPath, sqpackDir string) (*sqindex.Cache, error) {
	indexPath, ok := sqpath.PhysicalIndexFilename(logicalPath, sqpackDir)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, fmt.Errorf("%w: unrecognised category or expansion", ErrNotFound))
	}

	indexSrc, err := bufsource.Open(indexPath)
	if err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}
	defer indexSrc.Close()

	reader, err := sqindex.NewReader(indexSrc)
	if err != nil {
		return nil, wrapIndexError(logicalPath, err)
	}

	cache, err := sqindex.BuildCache(reader)
	if err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}
	return cache, nil
}

// OpenWithCache resolves logicalPath using a previously built
// sqindex.Cache instead of re-scanning the index file.
func OpenWithCache(logicalPath, sqpackDir string, cache *sqindex.Cache) (*sqdata.BlockStream, error) {
	hashes, ok := sqpath.IndexHashOf(logicalPath)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, fmt.Errorf("%w: path has no folder/file separator", ErrNotFound))
	}
	slog.Debug("sqpack: resolving path from cache", "path", logicalPath, "folderHash", hashes.FolderHash, "fileHash", hashes.FileHash)

	entry, ok := cache.Lookup(hashes.FolderHash, hashes.FileHash)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, ErrNotFound)
	}
	return openDataEntry(logicalPath, sqpackDir, entry)
}

// openDataEntry opens the data file named by entry.DataFileOrdinal and
// returns a BlockStream over it. The returned stream's Close closes the
// underlying data-file handle; the façade retains no reference to it
// beyond this call.
func openDataEntry(logicalPath, sqpackDir string, entry sqindex.FileEntry) (*sqdata.BlockStream, error) {
	dataPath, ok := sqpath.PhysicalDataFilename(logicalPath, entry.DataFileOrdinal, sqpackDir)
	if !ok {
		return nil, newError(KindNotFound, logicalPath, fmt.Errorf("%w: unrecognised category or expansion", ErrNotFound))
	}
	slog.Debug("sqpack: opening data file", "path", logicalPath, "dataFile", dataPath, "offset", entry.DataOffset)

	dataSrc, err := bufsource.Open(dataPath)
	if err != nil {
		return nil, newError(KindIO, logicalPath, err)
	}

	stream, err := sqdata.NewReader(dataSrc).Open(entry)
	if err != nil {
		dataSrc.Close()
		var unk *sqdata.UnknownContentTypeError
		if errors.As(err, &unk) {
			return nil, newError(KindUnknownContentType, logicalPath, err)
		}
		return nil, newError(KindIO, logicalPath, err)
	}
	return stream.WithCloser(dataSrc), nil
}

func wrapIndexError(logicalPath string, err error) error {
	switch {
	case errors.Is(err, sqindex.ErrNotSqPack):
		return newError(KindNotSqPack, logicalPath, ErrNotSqPack)
	case errors.Is(err, sqindex.ErrNotIndex):
		return newError(KindNotIndex, logicalPath, ErrNotIndex)
	default:
		return newError(KindIO, logicalPath, err)
	}
}
