package store

import (
	"strings"
)

var mediaContentTypePrefixes = []string{"image/", "video/"}

var MediaExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".bmp", ".tiff",
	".mp4", ".webm", ".mov",
}

// MediaPredicate matches image and video attachments, for a table aliased as alias.
// It is plain SQL that both backends understand.
func MediaPredicate(alias string) string {
	var clauses []string
	for _, prefix := range mediaContentTypePrefixes {
		clauses = append(clauses, "LOWER("+alias+".content_type) LIKE '"+prefix+"%'")
	}
	for _, ext := range MediaExtensions {
		clauses = append(clauses, "LOWER("+alias+".filename) LIKE '%"+ext+"'")
	}
	return "(" + strings.Join(clauses, " OR ") + ")"
}
