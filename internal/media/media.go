package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"mimic/internal/services"
)

// Bucket is the logical storage category for an uploaded sample.
type Bucket string

const (
	BucketVoice Bucket = "voice"
	BucketImage Bucket = "image"
	BucketVideo Bucket = "video"
)

// MaxUploadBytes is the default per-file upload ceiling (100 MiB).
const MaxUploadBytes int64 = 100 * 1024 * 1024

var allBuckets = []Bucket{BucketVoice, BucketImage, BucketVideo}

// Field names accepted by the ingestion endpoint, mapped to buckets.
var fieldBuckets = map[string]Bucket{
	"audio": BucketVoice,
	"image": BucketImage,
	"video": BucketVideo,
}

var allowedExtensions = map[Bucket]map[string]struct{}{
	BucketVoice: {".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".mp4": {}},
	BucketImage: {".jpg": {}, ".jpeg": {}, ".png": {}},
	BucketVideo: {".mp4": {}, ".mov": {}, ".avi": {}, ".webm": {}},
}

var allowedMIMEPrefix = map[Bucket]string{
	BucketVoice: "audio/",
	BucketImage: "image/",
	BucketVideo: "video/",
}

// AllBuckets returns the ordered list of known buckets.
func AllBuckets() []Bucket {
	cp := make([]Bucket, len(allBuckets))
	copy(cp, allBuckets)
	return cp
}

// ParseBucket converts a string into a known Bucket.
func ParseBucket(value string) (Bucket, bool) {
	normalized := Bucket(strings.ToLower(strings.TrimSpace(value)))
	for _, b := range allBuckets {
		if b == normalized {
			return b, true
		}
	}
	return "", false
}

// BucketForField maps a multipart field name (audio, image, video) to its bucket.
func BucketForField(field string) (Bucket, bool) {
	bucket, ok := fieldBuckets[strings.ToLower(strings.TrimSpace(field))]
	return bucket, ok
}

// Validate checks a named upload against the bucket's allow-list and size cap.
// maxBytes <= 0 applies the default ceiling. All rejections carry the
// validation marker so callers surface them without retrying.
func Validate(bucket Bucket, filename, contentType string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if size > maxBytes {
		return services.Wrap(services.ErrValidation, "ingest", "validate",
			fmt.Sprintf("file %q exceeds %d byte limit", filename, maxBytes), nil)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[bucket][ext]; ok {
		return nil
	}
	if prefix := allowedMIMEPrefix[bucket]; prefix != "" && strings.HasPrefix(strings.ToLower(contentType), prefix) {
		return nil
	}
	return services.Wrap(services.ErrValidation, "ingest", "validate",
		fmt.Sprintf("file %q is not an accepted %s type", filename, bucket), nil)
}

// SanitizeName strips characters that are unsafe in object store keys.
func SanitizeName(name string) string {
	var builder strings.Builder
	for _, r := range filepath.Base(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '.', r == '-':
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	cleaned := builder.String()
	if strings.Trim(cleaned, "._-") == "" {
		return "upload"
	}
	return cleaned
}
