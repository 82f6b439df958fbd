package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

var (
	ErrObjectStoreDisabled = errors.New("s3 references require MINIO_ENDPOINT")
	ErrBucketNotAllowed    = errors.New("bucket is not the configured asset bucket")
	ErrHostNotAllowed      = errors.New("host is not in FETCH_ALLOWED_HOSTS")
)

// IsReference reports whether s points at a remote object instead of
// carrying the image inline.
func IsReference(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "s3://") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetcher resolves asset references into in-memory bytes. It supports two
// kinds of URL:
//   - s3://bucket/object, read through MinIO from the configured bucket only
//   - plain HTTP(S) links on an allow-listed host, e.g. presigned URLs
//
// Nothing is written back; fetched bytes live only as long as the asset.
type Fetcher struct {
	minio        *minio.Client
	bucket       string
	allowedHosts map[string]struct{}
	httpClient   *http.Client
	maxBytes     int64
	logger       *logrus.Logger
}

// NewFetcher builds a Fetcher. MinIO is optional: without an endpoint s3
// references fail. Without allowed hosts every HTTP(S) reference fails.
func NewFetcher(cfg config.MinIOConfig, fetch config.FetchConfig, maxBytes int64, logger *logrus.Logger) (*Fetcher, error) {
	f := &Fetcher{
		bucket:       cfg.BucketName,
		allowedHosts: make(map[string]struct{}),
		maxBytes:     maxBytes,
		logger:       logger,
	}
	for _, h := range fetch.HostList() {
		f.allowedHosts[strings.ToLower(h)] = struct{}{}
	}
	f.httpClient = &http.Client{
		Timeout: 60 * time.Second,
		// 重定向也必须落在白名单内
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return f.checkHost(req.URL)
		},
	}
	if cfg.Enabled() {
		mc, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		f.minio = mc
	}
	return f, nil
}

// Resolve returns asset with its reference replaced by the fetched bytes.
// Inline assets are returned unchanged.
func (f *Fetcher) Resolve(ctx context.Context, asset models.ImageAsset) (models.ImageAsset, error) {
	if !asset.IsRemote() {
		return asset, nil
	}

	var (
		data        []byte
		contentType string
		name        string
		err         error
	)
	if strings.HasPrefix(strings.ToLower(asset.Ref), "s3://") {
		data, contentType, name, err = f.fetchObject(ctx, asset.Ref)
	} else {
		data, contentType, name, err = f.fetchHTTP(ctx, asset.Ref)
	}
	if err != nil {
		return asset, fmt.Errorf("fetch %s: %w", asset.Ref, err)
	}

	resolved := asset
	resolved.Binary = data
	if resolved.MIMEType == "" {
		resolved.MIMEType = imageMIME(contentType, name)
	}
	if resolved.OriginalName == "" {
		resolved.OriginalName = name
	}
	f.logger.WithFields(logrus.Fields{"ref": asset.Ref, "bytes": len(data)}).Debug("asset reference resolved")
	return resolved, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, ref string) ([]byte, string, string, error) {
	if f.minio == nil {
		return nil, "", "", ErrObjectStoreDisabled
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, "", "", err
	}
	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		bucket = f.bucket
	}
	if bucket != f.bucket {
		return nil, "", "", fmt.Errorf("%w: %q", ErrBucketNotAllowed, bucket)
	}
	if object == "" {
		return nil, "", "", fmt.Errorf("missing object key in %q", ref)
	}

	obj, err := f.minio.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", "", err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", "", err
	}
	data, err := f.readLimited(obj)
	if err != nil {
		return nil, "", "", err
	}
	return data, info.ContentType, path.Base(object), nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", "", err
	}
	if err := f.checkHost(req.URL); err != nil {
		return nil, "", "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", "", fmt.Errorf("http status %d", resp.StatusCode)
	}
	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, "", "", err
	}

	// 从 URL 推断文件名
	name := "image"
	if u, err := url.Parse(ref); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	return data, resp.Header.Get("Content-Type"), name, nil
}

// checkHost accepts a URL whose host, with or without port, is allow-listed.
func (f *Fetcher) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Host)
	if _, ok := f.allowedHosts[host]; ok {
		return nil
	}
	if _, ok := f.allowedHosts[strings.ToLower(u.Hostname())]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrHostNotAllowed, u.Host)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if f.maxBytes <= 0 {
		_, err := io.Copy(&buf, r)
		return buf.Bytes(), err
	}
	n, err := io.Copy(&buf, io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if n > f.maxBytes {
		return nil, fmt.Errorf("object exceeds %d bytes", f.maxBytes)
	}
	return buf.Bytes(), nil
}

func imageMIME(contentType, name string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		if t := mime.TypeByExtension(strings.ToLower(name[i:])); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return ""
}
