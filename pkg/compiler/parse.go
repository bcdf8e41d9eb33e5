package compiler

import (
	"regexp"
	"sort"
	"strings"
)

var (
	reDynamicImport = regexp.MustCompile(`import\(['"](.+?)['"]\)`)
	reRequireCall   = regexp.MustCompile(`require\(['"](.+?)['"]\)`)
)

// ScanRequires extracts the module specifiers referenced by dynamic
// import() and require() calls in source content.
//
// Returned specifiers are reduced to their chunk id (the first path
// segment, with any relative prefix stripped), deduplicated and sorted.
func ScanRequires(content []byte) []string {
	seen := make(map[string]struct{})

	for _, re := range []*regexp.Regexp{reDynamicImport, reRequireCall} {
		for _, match := range re.FindAllSubmatch(content, -1) {
			id := specifierChunkID(string(match[1]))
			if id != "" {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// specifierChunkID maps a module specifier like "./math/trig.js" to the
// chunk id it belongs to ("math"). Bare specifiers map to their first
// path segment.
func specifierChunkID(spec string) string {
	spec = strings.TrimPrefix(spec, "./")
	for strings.HasPrefix(spec, "../") {
		spec = strings.TrimPrefix(spec, "../")
	}
	if spec == "" {
		return ""
	}

	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return spec[:i]
	}

	// Single-segment specifier: drop the extension.
	if i := strings.LastIndexByte(spec, '.'); i > 0 {
		return spec[:i]
	}
	return spec
}
