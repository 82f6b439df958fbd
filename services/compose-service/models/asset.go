package models

import "strings"

// ImageAsset is one uploaded image. Exactly one of Binary, Encoded or Ref
// carries the payload:
//   - Binary:  raw image bytes (multipart uploads)
//   - Encoded: a data URL or bare base64 text, as sent by browsers
//   - Ref:     an s3:// or http(s):// reference resolved before generation
//
// Assets are immutable once created.
type ImageAsset struct {
	ID           string `json:"id"`
	Binary       []byte `json:"binary,omitempty"`
	Encoded      string `json:"encoded,omitempty"`
	Ref          string `json:"ref,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

// Empty reports whether the asset carries no payload at all.
func (a ImageAsset) Empty() bool {
	return len(a.Binary) == 0 && strings.TrimSpace(a.Encoded) == "" && strings.TrimSpace(a.Ref) == ""
}

// IsRemote reports whether the payload still has to be fetched.
func (a ImageAsset) IsRemote() bool {
	return a.Ref != "" && len(a.Binary) == 0 && a.Encoded == ""
}

// Size returns the payload size in bytes as held in memory.
func (a ImageAsset) Size() int {
	if len(a.Binary) > 0 {
		return len(a.Binary)
	}
	return len(a.Encoded)
}

// Pair is a value pairing of one photo with one inspiration image.
type Pair struct {
	Photo       ImageAsset `json:"photo"`
	Inspiration ImageAsset `json:"inspiration"`
}
