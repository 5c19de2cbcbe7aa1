// Package media decodes uploaded answer files (base64 or data URLs) and
// settles their MIME type by content sniffing.
package media

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultMaxFiles bounds the number of files attached to one answer
	DefaultMaxFiles = 8
	// DefaultMaxBytes bounds the decoded size of a single file
	DefaultMaxBytes = 20 << 20
)

// Upload is a file as it arrives on the wire
type Upload struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// Limits caps what Decode accepts
type Limits struct {
	MaxFiles int
	MaxBytes int
}

// DefaultLimits returns the limits used by the HTTP and MCP surfaces
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxBytes: DefaultMaxBytes}
}

// DecodeAll decodes every upload. Failures wrap domain.ErrInvalidAnswerShape.
func DecodeAll(uploads []Upload, lim Limits) ([]domain.Media, error) {
	if lim.MaxFiles > 0 && len(uploads) > lim.MaxFiles {
		return nil, fmt.Errorf("%w: %d files attached, at most %d allowed",
			domain.ErrInvalidAnswerShape, len(uploads), lim.MaxFiles)
	}
	out := make([]domain.Media, 0, len(uploads))
	for i, u := range uploads {
		m, err := Decode(u, lim)
		if err != nil {
			return nil, fmt.Errorf("media %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Decode decodes one upload. The MIME type comes from the declared type,
// then the data URL prefix, then the bytes themselves.
func Decode(u Upload, lim Limits) (domain.Media, error) {
	data, hint, err := decodePayload(u.Data)
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: %v", domain.ErrInvalidAnswerShape, err)
	}
	if len(data) == 0 {
		return domain.Media{}, fmt.Errorf("%w: empty media payload", domain.ErrInvalidAnswerShape)
	}
	if lim.MaxBytes > 0 && len(data) > lim.MaxBytes {
		return domain.Media{}, fmt.Errorf("%w: media is %d bytes, limit is %d",
			domain.ErrInvalidAnswerShape, len(data), lim.MaxBytes)
	}

	mt := pickMIME(u.MIMEType, hint, data)
	if !supported(mt) {
		return domain.Media{}, fmt.Errorf("%w: unsupported media type %s", domain.ErrInvalidAnswerShape, mt)
	}
	return domain.Media{Name: u.Name, MIMEType: mt, Data: data}, nil
}

// decodePayload accepts plain or URL-safe base64, optionally wrapped in a
// data: URL whose media type is returned as a hint
func decodePayload(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data url")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data url is not base64 encoded")
		}
		hint, _, _ = strings.Cut(strings.TrimSuffix(meta, ";base64"), ";")
		s = payload
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hint, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, hint, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64: %w", err)
	}
	return b, hint, nil
}

func pickMIME(declared, hint string, data []byte) string {
	for _, v := range []string{declared, hint} {
		v = normalize(v)
		if v != "" && v != "application/octet-stream" {
			return v
		}
	}
	return normalize(mimetype.Detect(data).String())
}

func normalize(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// supported reports whether a judge can be asked about the type at all.
// Per-provider support is checked again when the judge is called.
func supported(mt string) bool {
	switch {
	case strings.HasPrefix(mt, "image/"), strings.HasPrefix(mt, "audio/"):
		return true
	case mt == "video/webm", mt == "video/mp4", mt == "application/pdf":
		return true
	}
	return false
}
