package weaver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotDataURL is returned by DecodeDataURL for anything but a base64 data URL.
	ErrNotDataURL = errors.New("not a base64 data URL")

	// ErrUnsupportedImage is returned by DecodeImageDataURL for media types
	// outside downloadTypes.
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var downloadTypes = map[string]string{
	"image/png":  "image/png",
	"image/jpeg": "image/jpeg",
	"image/webp": "image/webp",
	"image/gif":  "image/gif",
}

// Download describes the retrieval affordance offered next to a rendered image.
type Download struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// NewDownload binds a download to url with a filename stamped at t.
func NewDownload(url string, t time.Time) *Download {
	return &Download{URL: url, Filename: DownloadFilename(t)}
}

// DownloadFilename returns "ai-vision-<unix millis>.png".
func DownloadFilename(t time.Time) string {
	return fmt.Sprintf("ai-vision-%d.png", t.UnixMilli())
}

// DecodeDataURL extracts the payload and media type of a base64 data URL.
func DecodeDataURL(raw string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, "", ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrNotDataURL
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", ErrNotDataURL
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return data, mime, nil
}

// DecodeImageDataURL decodes a data URL carrying a raster image. The returned
// content type comes from a fixed allow-list, never from the input.
func DecodeImageDataURL(raw string) ([]byte, string, error) {
	data, mime, err := DecodeDataURL(raw)
	if err != nil {
		return nil, "", err
	}
	contentType, ok := downloadTypes[strings.ToLower(mime)]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedImage, mime)
	}
	return data, contentType, nil
}

// IsRemoteURL reports whether raw is an absolute http(s) URL.
func IsRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
