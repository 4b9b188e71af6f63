package polito

import "regexp"

var invalidFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.\s-]`)

// SanitizeFilename replaces every character that is unsafe in a file
// name with an underscore. Sanitizing twice equals sanitizing once.
func SanitizeFilename(name string) string {
	return invalidFilenameChars.ReplaceAllString(name, "_")
}
