package sqindex

import "fmt"

// Cache is an immutable in-memory snapshot of an index file's file
// entries, organised as a two-level folder_hash -> file_hash -> FileEntry
// map for expected-O(1) lookup. It holds no reference to the Reader it
// was built from.
type Cache struct {
	folders map[uint32]map[uint32]FileEntry
}

// BuildCache builds a Cache by iterating r.Folders and, for each folder,
// r.FolderContents. Construction is O(files_count).
func BuildCache(r *Reader) (*Cache, error) {
	folderScanner, err := r.Folders()
	if err != nil {
		return nil, err
	}

	var folders []FolderInfo
	for folderScanner.Next() {
		folders = append(folders, folderScanner.Entry())
	}
	if err := folderScanner.Err(); err != nil {
		return nil, err
	}

	out := &Cache{folders: make(map[uint32]map[uint32]FileEntry, len(folders))}
	for _, folder := range folders {
		files := make(map[uint32]FileEntry, folder.FilesCount)

		fileScanner, err := r.FolderContents(folder)
		if err != nil {
			return nil, err
		}
		for fileScanner.Next() {
			entry := fileScanner.Entry()
			files[entry.FileHash] = entry
		}
		if err := fileScanner.Err(); err != nil {
			return nil, fmt.Errorf("sqindex: reading contents of folder %#x: %w", folder.FolderHash, err)
		}

		out.folders[folder.FolderHash] = files
	}
	return out, nil
}

// Lookup returns the file entry for (folderHash, fileHash), if present.
func (c *Cache) Lookup(folderHash, fileHash uint32) (FileEntry, bool) {
	files, ok := c.folders[folderHash]
	if !ok {
		return FileEntry{}, false
	}
	entry, ok := files[fileHash]
	return entry, ok
}
