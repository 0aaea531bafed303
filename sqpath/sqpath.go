// Package sqpath parses SqPack logical paths — forward-slash-delimited,
// case-insensitive strings such as "music/ffxiv/BGM_System_Title.scd" — and
// derives the physical index/data filenames and index hashes they map to.
//
// Parsing is deliberately tolerant: an unrecognised category or expansion
// doesn't panic or return an error, it just makes physical filename
// derivation report "no such file", the same way a typo'd path simply
// wouldn't resolve to anything on disk.
package sqpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqpack-go/sqpack/hash"
)

// Category is the one-byte discriminant named by a logical path's first
// segment.
type Category byte

// The closed set of categories, per the game's own archive layout.
const (
	CategoryCommon     Category = 0x00
	CategoryBGCommon   Category = 0x01
	CategoryBG         Category = 0x02
	CategoryCut        Category = 0x03
	CategoryChara      Category = 0x04
	CategoryShader     Category = 0x05
	CategoryUI         Category = 0x06
	CategorySound      Category = 0x07
	CategoryVFX        Category = 0x08
	CategoryUIScript   Category = 0x09
	CategoryEXD        Category = 0x0a
	CategoryGameScript Category = 0x0b
	CategoryMusic      Category = 0x0c
	CategorySqpackTest Category = 0x12
	CategoryDebug      Category = 0x13
)

var categoryByName = map[string]Category{
	"common":       CategoryCommon,
	"bgcommon":     CategoryBGCommon,
	"bg":           CategoryBG,
	"cut":          CategoryCut,
	"chara":        CategoryChara,
	"shader":       CategoryShader,
	"ui":           CategoryUI,
	"sound":        CategorySound,
	"vfx":          CategoryVFX,
	"ui_script":    CategoryUIScript,
	"exd":          CategoryEXD,
	"game_script":  CategoryGameScript,
	"music":        CategoryMusic,
	"_sqpack_test": CategorySqpackTest,
	"_debug":       CategoryDebug,
}

var categoryName = func() map[Category]string {
	m := make(map[Category]string, len(categoryByName))
	for name, id := range categoryByName {
		m[id] = name
	}
	return m
}()

// String returns the canonical lowercase category segment name, e.g.
// "music", or "" if id is not one of the closed set.
func (c Category) String() string { return categoryName[c] }

// ParseCategory looks up a category by its logical-path segment name. The
// second return value is false for anything outside the closed set.
func ParseCategory(name string) (Category, bool) {
	c, ok := categoryByName[strings.ToLower(name)]
	return c, ok
}

// Expansion is the one-byte discriminant named by a logical path's second
// segment.
type Expansion byte

// The closed set of expansions.
const (
	ExpansionFFXIV Expansion = 0x00
	ExpansionEx1   Expansion = 0x01
	ExpansionEx2   Expansion = 0x02
	ExpansionEx3   Expansion = 0x03
	ExpansionEx4   Expansion = 0x04
)

var expansionByName = map[string]Expansion{
	"ffxiv": ExpansionFFXIV,
	"ex1":   ExpansionEx1,
	"ex2":   ExpansionEx2,
	"ex3":   ExpansionEx3,
	"ex4":   ExpansionEx4,
}

var expansionName = func() map[Expansion]string {
	m := make(map[Expansion]string, len(expansionByName))
	for name, id := range expansionByName {
		m[id] = name
	}
	return m
}()

// String returns the canonical lowercase expansion segment name, e.g.
// "ex3", or "" if id is not one of the closed set.
func (e Expansion) String() string { return expansionName[e] }

// ParseExpansion looks up an expansion by its logical-path segment name.
// The second return value is false for anything outside the closed set.
func ParseExpansion(name string) (Expansion, bool) {
	e, ok := expansionByName[strings.ToLower(name)]
	return e, ok
}

// PackNumber is the one-byte discriminant encoded in the leading hex run
// of a logical path's filename segment.
type PackNumber byte

// IndexHash is the (folder_hash, file_hash) pair used as an index file's
// lookup key.
type IndexHash struct {
	FolderHash uint32
	FileHash   uint32
}

// Split breaks a logical path into its category, expansion, filename, and
// remainder segments, by splitting on the first three '/'. Any segment
// missing because the path is too short is returned as "".
func Split(path string) (category, expansion, filename, rest string) {
	first := strings.IndexByte(path, '/')
	if first < 0 {
		return path, "", "", ""
	}
	category = path[:first]
	remainder := path[first+1:]

	second := strings.IndexByte(remainder, '/')
	if second < 0 {
		return category, remainder, "", ""
	}
	expansion = remainder[:second]
	remainder = remainder[second+1:]

	third := strings.IndexByte(remainder, '/')
	if third < 0 {
		return category, expansion, remainder, ""
	}
	return category, expansion, remainder[:third], remainder[third+1:]
}

// IndexHashOf computes the index hash of a logical path: the folder hash
// is over everything before the last '/' and the file hash is over
// everything after, both case-folded. The second return value is false if
// path contains no '/' at all.
func IndexHashOf(path string) (IndexHash, bool) {
	last := strings.LastIndexByte(path, '/')
	if last < 0 {
		return IndexHash{}, false
	}
	return IndexHash{
		FolderHash: hash.LowerString(path[:last]),
		FileHash:   hash.LowerString(path[last+1:]),
	}, true
}

// packNumberOf derives the PackNumber encoded in a filename segment: the
// run of ASCII hex digits at the start of the segment, stopped by the
// first non-hex byte or by '_', whichever comes first, parsed as an
// unsigned hex integer and truncated to its low byte. A run shorter than
// two digits isn't a hex pair and yields 0, the same as no leading hex
// digits at all — this is what keeps ordinary asset names like
// "BGM_System_Title.scd" (leading run "B", length 1) or "file_with_no_leading_hex"
// (leading run "f", length 1) resolving to pack 0 instead of 0x0b/0x0f.
func packNumberOf(filename string) PackNumber {
	if cut := strings.IndexByte(filename, '_'); cut >= 0 {
		filename = filename[:cut]
	}
	end := 0
	for end < len(filename) && isHexDigit(filename[end]) {
		end++
	}
	if end < 2 {
		return 0
	}
	v, err := strconv.ParseUint(filename[:end], 16, 64)
	if err != nil {
		return 0
	}
	return PackNumber(byte(v))
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// physicalPrefix returns the parsed Expansion and the six lowercase hex
// digits "CCEEPP" for a logical path, and false if the category or
// expansion isn't recognised.
func physicalPrefix(path string) (Expansion, string, bool) {
	categoryStr, expansionStr, filename, _ := Split(path)
	category, ok := ParseCategory(categoryStr)
	if !ok {
		return 0, "", false
	}
	expansion, ok := ParseExpansion(expansionStr)
	if !ok {
		return 0, "", false
	}
	pack := packNumberOf(filename)
	return expansion, fmt.Sprintf("%02x%02x%02x", byte(category), byte(expansion), byte(pack)), true
}

// PhysicalIndexFilename derives the on-disk index filename for a logical
// path under sqpackDir, e.g.
// PhysicalIndexFilename("music/ffxiv/BGM_System_Title.scd", "/root/sqpack")
// returns "/root/sqpack/ffxiv/0c0000.win32.index". The second return
// value is false, without touching the filesystem, if the category or
// expansion segment isn't recognised.
func PhysicalIndexFilename(path, sqpackDir string) (string, bool) {
	expansion, prefix, ok := physicalPrefix(path)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s.win32.index", sqpackDir, expansion.String(), prefix), true
}

// PhysicalDataFilename derives the on-disk data filename for a logical
// path and a data-file ordinal (0..7) under sqpackDir. The second return
// value is false if the category or expansion segment isn't recognised.
func PhysicalDataFilename(path string, ordinal uint8, sqpackDir string) (string, bool) {
	expansion, prefix, ok := physicalPrefix(path)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s.win32.dat%d", sqpackDir, expansion.String(), prefix, ordinal), true
}
