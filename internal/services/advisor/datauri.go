package advisor

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseDataURI decodes a base64 data URI such as "data:image/png;base64,iVBOR...".
func ParseDataURI(s string) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: not a data URI", ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: data URI has no payload", ErrInvalidImage)
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("%w: data URI is not base64 encoded", ErrInvalidImage)
	}
	// drop parameters like ";charset=..."
	mime, _, _ = strings.Cut(mime, ";")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Image{MIMEType: strings.ToLower(mime), Data: data}, nil
}
