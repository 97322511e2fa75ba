package canvasgraph

import (
	"strings"
)

// AssetClass is the result of classifying an asset string.
type AssetClass int

const (
	// AssetInvalid means the string is neither a URL nor plausible base64.
	AssetInvalid AssetClass = iota

	// AssetURL means the string is an absolute/relative URL (http, https,
	// blob, or path-style) usable directly by a renderer.
	AssetURL

	// AssetDataURI means the string is a data:image/... URI with an
	// embedded base64 payload.
	AssetDataURI

	// AssetInline means the string is the canonical inline encoding
	// (mime;base64-payload) or raw base64 of sufficient length.
	AssetInline
)

// String returns the class name.
func (c AssetClass) String() string {
	switch c {
	case AssetURL:
		return "url"
	case AssetDataURI:
		return "data_uri"
	case AssetInline:
		return "inline"
	default:
		return "invalid"
	}
}

// minInlineLen is the minimum length for a string to be treated as raw
// base64. Shorter strings are rejected as malformed rather than risk
// misclassifying ordinary text.
const minInlineLen = 64

// urlPrefixes are the recognized URL schemes and path forms.
var urlPrefixes = []string{"http://", "https://", "blob:", "/", "./"}

// ClassifyAsset determines whether an asset string is a URL, a data
// URI, inline base64, or malformed.
//
// The rule: strings beginning with a recognized URL scheme are URLs;
// a data:image/ prefix is an inline-encoded data URI; anything else of
// sufficient length and base64 charset is treated as raw base64.
func ClassifyAsset(s string) AssetClass {
	if s == "" {
		return AssetInvalid
	}
	for _, p := range urlPrefixes {
		if strings.HasPrefix(s, p) {
			return AssetURL
		}
	}
	if strings.HasPrefix(s, "data:image/") {
		return AssetDataURI
	}
	if body, ok := splitCanonicalInline(s); ok {
		if isBase64Body(body) {
			return AssetInline
		}
		return AssetInvalid
	}
	if len(s) >= minInlineLen && isBase64Body(s) {
		return AssetInline
	}
	return AssetInvalid
}

// IsRemoteAsset reports whether s renders directly from a URL.
func IsRemoteAsset(s string) bool {
	return ClassifyAsset(s) == AssetURL
}

// NormalizeInline converts any accepted inline form into the canonical
// encoding "mime;base64-payload".
//
// Accepted inputs:
//   - canonical form ("image/png;iVBOR...") — returned unchanged
//   - data URI ("data:image/png;base64,iVBOR...") — header rewritten
//   - raw base64 of sufficient length — assumed image/png
//
// Malformed encodings (wrong charset, too short, bad header) return
// ErrMalformedAsset. Validation is a minimal charset/length check, not
// a content checksum.
func NormalizeInline(s string) (string, error) {
	if body, ok := splitCanonicalInline(s); ok {
		if !isBase64Body(body) {
			return "", ErrMalformedAsset
		}
		return s, nil
	}

	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		// data:image/png;base64,PAYLOAD
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return "", ErrMalformedAsset
		}
		mime, enc, found := strings.Cut(header, ";")
		if !found || enc != "base64" || !strings.HasPrefix(mime, "image/") {
			return "", ErrMalformedAsset
		}
		if len(body) == 0 || !isBase64Body(body) {
			return "", ErrMalformedAsset
		}
		return mime + ";" + body, nil
	}

	if len(s) >= minInlineLen && isBase64Body(s) {
		return "image/png;" + s, nil
	}
	return "", ErrMalformedAsset
}

// InlineToDataURI converts a canonical inline encoding to a data URI
// for direct rendering. Returns the input unchanged if it is not in
// canonical form.
func InlineToDataURI(s string) string {
	mime, body, ok := cutCanonicalInline(s)
	if !ok {
		return s
	}
	return "data:" + mime + ";base64," + body
}

// splitCanonicalInline reports whether s is in "mime;payload" form and
// returns the payload.
func splitCanonicalInline(s string) (body string, ok bool) {
	_, body, ok = cutCanonicalInline(s)
	return body, ok
}

// cutCanonicalInline splits "image/xxx;payload" into its parts.
func cutCanonicalInline(s string) (mime, body string, ok bool) {
	if !strings.HasPrefix(s, "image/") {
		return "", "", false
	}
	mime, body, found := strings.Cut(s, ";")
	if !found || body == "" {
		return "", "", false
	}
	return mime, body, true
}

// isBase64Body checks the standard (or URL-safe) base64 charset with
// optional trailing padding. Deliberately cheap: a charset scan, not a
// decode.
func isBase64Body(s string) bool {
	if s == "" {
		return false
	}
	padding := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '-' || c == '_':
		case c == '=':
			padding++
			if padding > 2 {
				return false
			}
		default:
			return false
		}
		if c != '=' && padding > 0 {
			// Padding only at the end
			return false
		}
	}
	return true
}
