package relay

import (
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// objectTimeLayout renders as YY-MM-DD-HH-MM-SS.
const objectTimeLayout = "06-01-02-15-04-05"

const defaultImageExt = ".jpg"

var nameReplacer = strings.NewReplacer("/", "_", `\`, "_")

// ObjectName derives the blob name {displayName}/{YY-MM-DD-HH-MM-SS}{ext}
// from the ingestion time in loc.
func ObjectName(displayName string, at time.Time, loc *time.Location, ext string) string {
	dir := strings.TrimSpace(nameReplacer.Replace(displayName))
	if dir == "" || dir == "." || dir == ".." {
		dir = "unknown"
	}
	if ext == "" {
		ext = defaultImageExt
	}
	return dir + "/" + at.In(loc).Format(objectTimeLayout) + ext
}

// sniffImage detects the content type of data and the file extension to
// store it under. Unrecognized content keeps the .jpg extension.
func sniffImage(data []byte) (contentType, ext string) {
	mt := mimetype.Detect(data)
	contentType = mt.String()
	ext = mt.Extension()
	if !strings.HasPrefix(contentType, "image/") || ext == "" {
		ext = defaultImageExt
	}
	return contentType, ext
}
