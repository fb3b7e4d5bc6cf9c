package imaging

import (
	"encoding/base64"
	"path"
	"strings"
)

// SniffFormat identifies an encoded image from its magic bytes. It returns
// "" for anything that is not a supported raster format.
func SniffFormat(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg"
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "png"
	case len(data) >= 4 && string(data[:4]) == "GIF8":
		return "gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return "bmp"
	case len(data) >= 4 && (string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*"):
		return "tiff"
	}
	return ""
}

// IsDataURL reports whether src is an inline data: URL.
func IsDataURL(src string) bool {
	return strings.HasPrefix(strings.ToLower(src), "data:")
}

// DataURLPayload returns the payload of a data URL and whether it is base64.
func DataURLPayload(src string) (payload string, isBase64 bool, ok bool) {
	if !IsDataURL(src) {
		return "", false, false
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return "", false, false
	}
	header := strings.ToLower(src[:comma])
	return src[comma+1:], strings.HasSuffix(header, ";base64"), true
}

// DecodeDataURL returns the raw bytes of a base64 data URL, or of a bare
// base64 string.
func DecodeDataURL(src string) ([]byte, error) {
	payload := src
	if p, _, ok := DataURLPayload(src); ok {
		payload = p
	}
	payload = strings.TrimSpace(payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

// EstimatedDataURLSize approximates the decoded byte size of a data URL
// without decoding it.
func EstimatedDataURLSize(src string) int {
	payload, isBase64, ok := DataURLPayload(src)
	if !ok {
		return 0
	}
	if !isBase64 {
		return len(payload)
	}
	padding := len(payload) - len(strings.TrimRight(payload, "="))
	return len(payload)*3/4 - padding
}

// FilenameFromURL returns the last path segment of a URL, without query or
// fragment. Data URLs have no filename.
func FilenameFromURL(rawURL string) string {
	if rawURL == "" || IsDataURL(rawURL) {
		return ""
	}
	u := rawURL
	if idx := strings.IndexAny(u, "?#"); idx != -1 {
		u = u[:idx]
	}
	if idx := strings.Index(u, "://"); idx != -1 {
		u = u[idx+3:]
		slash := strings.IndexByte(u, '/')
		if slash < 0 {
			return ""
		}
		u = u[slash:]
	}
	name := path.Base(u)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
