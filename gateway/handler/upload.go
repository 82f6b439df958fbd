package handler

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

// assetFromFile reads an uploaded file part into an asset.
func assetFromFile(fh *multipart.FileHeader) (models.ImageAsset, error) {
	f, err := fh.Open()
	if err != nil {
		return models.ImageAsset{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	asset := models.ImageAsset{Binary: data, OriginalName: fh.Filename}
	if mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type")); err == nil && strings.HasPrefix(mediaType, "image/") {
		asset.MIMEType = mediaType
	}
	return asset, nil
}

// assetFromText builds an asset from a data URL or bare base64. URLs are
// refused; the gateway never fetches on a caller's behalf.
func assetFromText(s, name string) (models.ImageAsset, error) {
	return codec.AssetFromInline("", s, name)
}

// formAsset reads the first file under fileNames, else the first text value
// under textNames. A missing image yields an empty asset.
func formAsset(form *multipart.Form, fileNames, textNames []string) (models.ImageAsset, error) {
	if fh := firstFile(form, fileNames...); fh != nil {
		return assetFromFile(fh)
	}
	if s := firstValue(form, textNames...); s != "" {
		return assetFromText(s, "")
	}
	return models.ImageAsset{}, nil
}

// firstFile returns the first file under any of names.
func firstFile(form *multipart.Form, names ...string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, n := range names {
		if files := form.File[n]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func firstValue(form *multipart.Form, names ...string) string {
	if form == nil {
		return ""
	}
	for _, n := range names {
		if v := form.Value[n]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}
