package codec

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x01}

func TestDataURLRoundTrip(t *testing.T) {
	for _, mimeType := range []string{"image/png", "image/jpeg", ""} {
		url := EncodeDataURL(pngHeader, mimeType)
		got, gotMIME, err := DecodeDataURL(url)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, got)
		if mimeType == "" {
			assert.Equal(t, DefaultMIMEType, gotMIME)
		} else {
			assert.Equal(t, mimeType, gotMIME)
		}
	}
}

func TestToTransportFormStripsDataURLPrefix(t *testing.T) {
	asset := models.ImageAsset{ID: "p1", Encoded: EncodeDataURL(pngHeader, "image/png")}

	raw, err := ToTransportForm(asset, EncodingRawBase64)
	require.NoError(t, err)
	assert.NotContains(t, raw.Text, "data:")
	assert.Equal(t, "image/png", raw.MIMEType)
	assert.False(t, raw.AssumedMIME)

	bin, err := ToTransportForm(asset, EncodingBinaryPart)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, bin.Bytes)
	assert.Equal(t, "p1.png", bin.Filename)
}

func TestToTransportFormDefaultsToJPEG(t *testing.T) {
	asset := models.ImageAsset{ID: "raw", Binary: pngHeader}

	out, err := ToTransportForm(asset, EncodingDataURL)
	require.NoError(t, err)
	assert.True(t, out.AssumedMIME, "missing MIME must be flagged")
	assert.True(t, bytes.HasPrefix([]byte(out.Text), []byte("data:image/jpeg;base64,")))

	bare := models.ImageAsset{ID: "bare", Encoded: "aGVsbG8="}
	out, err = ToTransportForm(bare, EncodingDataURL)
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", out.Text)
	assert.True(t, out.AssumedMIME)
}

func TestToTransportFormUsesDeclaredMIME(t *testing.T) {
	asset := models.ImageAsset{ID: "x", Binary: pngHeader, OriginalName: "beach.PNG"}
	out, err := ToTransportForm(asset, EncodingDataURL)
	require.NoError(t, err)
	assert.False(t, out.AssumedMIME)
	assert.True(t, bytes.HasPrefix([]byte(out.Text), []byte("data:image/png;base64,")))
}

func TestToTransportFormIsIdempotent(t *testing.T) {
	assets := []models.ImageAsset{
		{ID: "a", Binary: pngHeader, MIMEType: "image/png"},
		{ID: "b", Encoded: "aGVsbG8="},
		{ID: "c", Encoded: EncodeDataURL(pngHeader, "image/webp")},
	}
	for _, enc := range []Encoding{EncodingDataURL, EncodingRawBase64, EncodingBinaryPart} {
		for _, asset := range assets {
			first, err := ToTransportForm(asset, enc)
			require.NoError(t, err)
			second, err := ToTransportForm(first.Asset(asset.ID), enc)
			require.NoError(t, err)
			assert.Equal(t, first.Text, second.Text, "asset %s enc %s", asset.ID, enc)
			assert.Equal(t, first.Bytes, second.Bytes, "asset %s enc %s", asset.ID, enc)
		}
	}
}

func TestEnsureDataURLIsIdempotent(t *testing.T) {
	once, assumed := EnsureDataURL("aGVsbG8=", "")
	assert.True(t, assumed)
	twice, assumedAgain := EnsureDataURL(once, "")
	assert.Equal(t, once, twice)
	assert.False(t, assumedAgain)
}

func TestToTransportFormPassesContentThrough(t *testing.T) {
	// not an image at all, but syntactically valid base64
	asset := models.ImageAsset{ID: "junk", Encoded: "data:image/png;base64,bm90IGFuIGltYWdl"}
	out, err := ToTransportForm(asset, EncodingBinaryPart)
	require.NoError(t, err)
	assert.Equal(t, []byte("not an image"), out.Bytes)
}

func TestToTransportFormErrors(t *testing.T) {
	_, err := ToTransportForm(models.ImageAsset{ID: "empty"}, EncodingDataURL)
	assert.ErrorIs(t, err, ErrEmptyAsset)

	_, err = ToTransportForm(models.ImageAsset{Ref: "s3://bucket/a.png"}, EncodingDataURL)
	assert.ErrorIs(t, err, ErrRemoteAsset)

	_, err = ToTransportForm(models.ImageAsset{Encoded: "data:image/png;base64,@@@"}, EncodingBinaryPart)
	assert.ErrorIs(t, err, ErrMalformedBase64)

	_, err = ToTransportForm(models.ImageAsset{Encoded: "data:image/png,plain"}, EncodingRawBase64)
	assert.ErrorIs(t, err, ErrMalformedDataURL)
}

func TestAssetFromString(t *testing.T) {
	ref := AssetFromString("1", " s3://photos/me.jpg ", "")
	assert.True(t, ref.IsRemote())
	assert.Equal(t, "s3://photos/me.jpg", ref.Ref)

	inline := AssetFromString("2", "data:image/png;base64,aGk=", "x.png")
	assert.Equal(t, "image/png", inline.MIMEType)
	assert.False(t, inline.IsRemote())
}

func TestAssetFromInlineRefusesReferences(t *testing.T) {
	for _, s := range []string{"http://169.254.169.254/latest/meta-data", " HTTPS://example.com/a.png", "s3://bucket/a.png"} {
		_, err := AssetFromInline("x", s, "")
		assert.ErrorIs(t, err, ErrReferenceNotAllowed, s)
	}
	a, err := AssetFromInline("x", "aGVsbG8=", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", a.Encoded)
	assert.False(t, a.IsRemote())
}

func TestFetcherResolvesHTTPReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	f, err := NewFetcher(config.MinIOConfig{}, allowHost(srv.URL), 1<<20, quietLogger())
	require.NoError(t, err)

	asset, err := f.Resolve(context.Background(), models.ImageAsset{ID: "r", Ref: srv.URL + "/inspo/sunset.png"})
	require.NoError(t, err)
	assert.Equal(t, pngHeader, asset.Binary)
	assert.Equal(t, "image/png", asset.MIMEType)
	assert.Equal(t, "sunset.png", asset.OriginalName)

	out, err := ToTransportForm(asset, EncodingDataURL)
	require.NoError(t, err)
	assert.Equal(t, EncodeDataURL(pngHeader, "image/png"), out.Text)
}

func TestFetcherRejectsOversizedAndMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(bytes.Repeat([]byte{1}, 64))
	}))
	defer srv.Close()

	f, err := NewFetcher(config.MinIOConfig{}, allowHost(srv.URL), 16, quietLogger())
	require.NoError(t, err)

	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: srv.URL + "/big.png"})
	assert.Error(t, err)

	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: srv.URL + "/missing.png"})
	assert.Error(t, err)

	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: "s3://bucket/key.png"})
	assert.ErrorIs(t, err, ErrObjectStoreDisabled)
}

func TestFetcherRefusesHostsOutsideAllowList(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("INTERNAL-SECRET"))
	}))
	defer internal.Close()
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/admin", http.StatusFound)
	}))
	defer public.Close()

	f, err := NewFetcher(config.MinIOConfig{}, config.FetchConfig{}, 1<<20, quietLogger())
	require.NoError(t, err)
	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: internal.URL + "/admin/credentials"})
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	// an allowed host cannot redirect somewhere else
	f, err = NewFetcher(config.MinIOConfig{}, config.FetchConfig{AllowedHosts: "example.invalid, " + mustHost(public.URL)}, 1<<20, quietLogger())
	require.NoError(t, err)
	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: public.URL + "/photo.png"})
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	assert.Zero(t, hits.Load(), "no request may reach a host outside the allow-list")
}

func TestFetcherPinsConfiguredBucket(t *testing.T) {
	// the client is never dialed: the bucket check runs first
	f, err := NewFetcher(config.MinIOConfig{Endpoint: "127.0.0.1:1", BucketName: "uploads"}, config.FetchConfig{}, 1<<20, quietLogger())
	require.NoError(t, err)

	_, err = f.Resolve(context.Background(), models.ImageAsset{Ref: "s3://private-backups/db.dump"})
	assert.ErrorIs(t, err, ErrBucketNotAllowed)
}

func allowHost(rawURL string) config.FetchConfig {
	return config.FetchConfig{AllowedHosts: mustHost(rawURL)}
}

func mustHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u.Host
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
