package asset

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FallbackFilename is used when sanitizing leaves nothing usable.
const FallbackFilename = "upload.tif"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// windowsDeviceNames cannot be used as file names on Windows regardless of extension.
var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename reduces a client-supplied name to a safe ASCII basename.
//
// The name is NFKD-normalized and stripped of non-ASCII runes, path separators
// become spaces, runs of whitespace collapse to "_", anything outside
// [A-Za-z0-9_.-] is dropped and leading or trailing dots and underscores are
// trimmed. "../../etc/passwd" becomes "etc_passwd" and "Mapa Área 1.tif"
// becomes "Mapa_Area_1.tif".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}

	s := strings.NewReplacer("/", " ", "\\", " ").Replace(b.String())
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if s == "" {
		return FallbackFilename
	}

	stem, _, _ := strings.Cut(s, ".")
	if _, reserved := windowsDeviceNames[strings.ToUpper(stem)]; reserved {
		s = "_" + s
	}
	return s
}
