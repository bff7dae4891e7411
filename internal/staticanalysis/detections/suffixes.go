package detections

import "strings"

// fileExtensions are suffixes that make a dotted name a file, not a host.
var fileExtensions = map[string]bool{
	"js": true, "mjs": true, "cjs": true, "jsx": true, "ts": true, "tsx": true,
	"json": true, "map": true, "node": true, "css": true, "scss": true, "less": true,
	"html": true, "htm": true, "md": true, "txt": true, "yml": true, "yaml": true,
	"png": true, "jpg": true, "svg": true, "gif": true, "wasm": true, "lock": true,
	"sh": true, "exe": true, "dll": true, "so": true, "log": true,
}

// commonTLDs are top-level domains frequent enough in package sources that a
// literal ending in one is more likely a host name than a payload.
var commonTLDs = map[string]bool{
	"com": true, "net": true, "org": true, "io": true, "dev": true, "app": true,
	"co": true, "me": true, "info": true, "biz": true, "edu": true, "gov": true,
	"us": true, "uk": true, "de": true, "fr": true, "nl": true, "ru": true,
	"cn": true, "jp": true, "in": true, "br": true, "au": true, "ca": true,
	"eu": true, "xyz": true, "top": true, "site": true, "online": true, "tech": true,
	"cloud": true, "ai": true, "tv": true, "cc": true, "ly": true, "gg": true,
}

// IsFileExtension reports whether ext (without the dot) is a known file
// extension. Matching is case-sensitive.
func IsFileExtension(ext string) bool {
	return fileExtensions[ext]
}

// IsCommonTLD reports whether tld (without the dot) is a common top-level
// domain. Matching is case-sensitive.
func IsCommonTLD(tld string) bool {
	return commonTLDs[tld]
}

// HasKnownSuffix reports whether s ends in a dot followed by a known file
// extension or common top-level domain.
func HasKnownSuffix(s string) bool {
	idx := strings.LastIndexByte(s, '.')
	if idx < 0 {
		return false
	}
	suffix := s[idx+1:]
	return IsFileExtension(suffix) || IsCommonTLD(suffix)
}
