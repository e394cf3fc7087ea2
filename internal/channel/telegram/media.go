package telegram

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
)

// encodeBody reads r up to limit bytes and base64-encodes it. Used for
// multimodal framing, where the router needs an inline image payload rather
// than a fetchable URL.
func encodeBody(r io.Reader, limit int64, mimeType string) (string, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", "", fmt.Errorf("telegram: read file body: %w", err)
	}
	if int64(len(data)) > limit {
		return "", "", fmt.Errorf("telegram: file body exceeds %s bytes", strconv.FormatInt(limit, 10))
	}
	return base64.StdEncoding.EncodeToString(data), mimeType, nil
}

// mimeFromPath guesses a MIME type from a Telegram file path's extension,
// defaulting to a generic image type since photo messages are the only
// media this adapter downloads.
func mimeFromPath(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "image/jpeg"
}
