// Package codec converts image assets between the encodings the provider
// accepts: inline data URLs, bare base64 and binary multipart parts.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

type Encoding string

const (
	EncodingDataURL    Encoding = "inline-data-url"
	EncodingRawBase64  Encoding = "raw-base64"
	EncodingBinaryPart Encoding = "binary-part"
)

// DefaultMIMEType is assumed for raw payloads that carry no MIME information.
// This is lossy: a PNG or WebP sent as bare base64 gets tagged as JPEG. Every
// use is flagged through EncodedImage.AssumedMIME.
const DefaultMIMEType = "image/jpeg"

const (
	dataURLPrefix = "data:"
	base64Marker  = ";base64,"
)

var (
	ErrEmptyAsset       = errors.New("image payload is empty")
	ErrRemoteAsset      = errors.New("image reference must be fetched before encoding")
	ErrMalformedDataURL = errors.New("malformed data URL")
	ErrMalformedBase64  = errors.New("malformed base64 payload")

	ErrReferenceNotAllowed = errors.New("image must be sent inline as a data URL, base64 or file part")
)

// EncodedImage is an asset in transport form. Text holds the data URL or
// base64 string for the text encodings; Bytes holds the decoded payload for
// EncodingBinaryPart.
type EncodedImage struct {
	Encoding    Encoding
	Text        string
	Bytes       []byte
	MIMEType    string
	Filename    string
	AssumedMIME bool
}

// ToTransportForm converts asset into enc. Image content is never inspected:
// anything that is syntactically a payload is passed through and left for the
// provider to accept or reject.
func ToTransportForm(asset models.ImageAsset, enc Encoding) (EncodedImage, error) {
	if asset.IsRemote() {
		return EncodedImage{}, ErrRemoteAsset
	}
	if asset.Empty() {
		return EncodedImage{}, ErrEmptyAsset
	}

	mimeType, assumed := resolveMIME(asset)
	out := EncodedImage{
		Encoding:    enc,
		MIMEType:    mimeType,
		Filename:    filename(asset, mimeType),
		AssumedMIME: assumed,
	}

	switch enc {
	case EncodingDataURL:
		out.Text = toDataURL(asset, mimeType)
	case EncodingRawBase64:
		raw, err := toRawBase64(asset)
		if err != nil {
			return EncodedImage{}, err
		}
		out.Text = raw
	case EncodingBinaryPart:
		b, err := toBinary(asset)
		if err != nil {
			return EncodedImage{}, err
		}
		out.Bytes = b
	default:
		return EncodedImage{}, fmt.Errorf("unknown encoding %q", enc)
	}
	return out, nil
}

// Asset turns an encoded image back into an asset so it can be transformed
// again; transforming it into the same encoding is a no-op.
func (e EncodedImage) Asset(id string) models.ImageAsset {
	a := models.ImageAsset{ID: id, OriginalName: e.Filename}
	if !e.AssumedMIME {
		a.MIMEType = e.MIMEType
	}
	if e.Encoding == EncodingBinaryPart {
		a.Binary = e.Bytes
	} else {
		a.Encoded = e.Text
	}
	return a
}

// IsDataURL reports whether s carries the data URL prefix.
func IsDataURL(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), dataURLPrefix)
}

// EnsureDataURL prefixes bare base64 with a data URL header. Input that is
// already a data URL is returned unchanged. When mimeType is empty
// DefaultMIMEType is used and assumed is true.
func EnsureDataURL(s, mimeType string) (dataURL string, assumed bool) {
	s = strings.TrimSpace(s)
	if IsDataURL(s) {
		return s, false
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
		assumed = true
	}
	return dataURLPrefix + mimeType + base64Marker + s, assumed
}

// EncodeDataURL encodes raw bytes as a base64 data URL.
func EncodeDataURL(b []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return dataURLPrefix + mimeType + base64Marker + base64.StdEncoding.EncodeToString(b)
}

// ParseDataURL splits a base64 data URL into its MIME type and payload.
func ParseDataURL(s string) (mimeType, payload string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, dataURLPrefix) {
		return "", "", ErrMalformedDataURL
	}
	header, payload, ok := strings.Cut(s[len(dataURLPrefix):], ",")
	if !ok {
		return "", "", ErrMalformedDataURL
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", "", fmt.Errorf("%w: only base64 data URLs are supported", ErrMalformedDataURL)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return mediaType, payload, nil
}

// DecodeDataURL returns the raw bytes and MIME type of a base64 data URL.
func DecodeDataURL(s string) ([]byte, string, error) {
	mimeType, payload, err := ParseDataURL(s)
	if err != nil {
		return nil, "", err
	}
	b, err := decodeBase64(payload)
	if err != nil {
		return nil, "", err
	}
	return b, mimeType, nil
}

// AssetFromDataURL wraps a provider-returned image (data URL) as an asset.
func AssetFromDataURL(id, dataURL string) (*models.ImageAsset, error) {
	mimeType, _, err := ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return &models.ImageAsset{
		ID:           id,
		Encoded:      dataURL,
		MIMEType:     mimeType,
		OriginalName: id + extensionFor(mimeType),
	}, nil
}

// AssetFromString builds an asset from a request string: s3:// and http(s)://
// become references, everything else is treated as a data URL or bare base64.
func AssetFromString(id, s, name string) models.ImageAsset {
	s = strings.TrimSpace(s)
	a := models.ImageAsset{ID: id, OriginalName: name}
	if IsReference(s) {
		a.Ref = s
		return a
	}
	a.Encoded = s
	if mimeType, _, err := ParseDataURL(s); err == nil {
		a.MIMEType = mimeType
	}
	return a
}

// AssetFromInline is AssetFromString for untrusted callers: s3:// and
// http(s):// strings are refused instead of becoming references.
func AssetFromInline(id, s, name string) (models.ImageAsset, error) {
	if IsReference(s) {
		return models.ImageAsset{}, ErrReferenceNotAllowed
	}
	return AssetFromString(id, s, name), nil
}

func toDataURL(asset models.ImageAsset, mimeType string) string {
	if asset.Encoded != "" {
		if IsDataURL(asset.Encoded) {
			return strings.TrimSpace(asset.Encoded)
		}
		url, _ := EnsureDataURL(asset.Encoded, mimeType)
		return url
	}
	return EncodeDataURL(asset.Binary, mimeType)
}

func toRawBase64(asset models.ImageAsset) (string, error) {
	if asset.Encoded != "" {
		if IsDataURL(asset.Encoded) {
			_, payload, err := ParseDataURL(asset.Encoded)
			return payload, err
		}
		return strings.TrimSpace(asset.Encoded), nil
	}
	return base64.StdEncoding.EncodeToString(asset.Binary), nil
}

func toBinary(asset models.ImageAsset) ([]byte, error) {
	if asset.Encoded == "" {
		return asset.Binary, nil
	}
	raw, err := toRawBase64(asset)
	if err != nil {
		return nil, err
	}
	return decodeBase64(raw)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}
	return b, nil
}

// resolveMIME picks the MIME type to advertise: data URL header first, then
// the asset's declared type, then the file extension, then DefaultMIMEType.
func resolveMIME(asset models.ImageAsset) (string, bool) {
	if IsDataURL(asset.Encoded) {
		if mimeType, _, err := ParseDataURL(asset.Encoded); err == nil && mimeType != "" {
			return mimeType, false
		}
	}
	if asset.MIMEType != "" {
		return asset.MIMEType, false
	}
	if i := strings.LastIndexByte(asset.OriginalName, '.'); i >= 0 {
		if t := mime.TypeByExtension(strings.ToLower(asset.OriginalName[i:])); strings.HasPrefix(t, "image/") {
			return t, false
		}
	}
	return DefaultMIMEType, true
}

func filename(asset models.ImageAsset, mimeType string) string {
	if asset.OriginalName != "" {
		return asset.OriginalName
	}
	name := asset.ID
	if name == "" {
		name = "image"
	}
	return name + extensionFor(mimeType)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
