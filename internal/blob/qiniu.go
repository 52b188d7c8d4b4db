package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/qiniu/go-sdk/v7/auth"
	"github.com/qiniu/go-sdk/v7/auth/qbox"
	"github.com/qiniu/go-sdk/v7/client"
	"github.com/qiniu/go-sdk/v7/storage"
)

// qiniuNoSuchFile is the Kodo error code for a missing object.
const qiniuNoSuchFile = 612

type QiniuConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Domain    string // http(s) origin bound to the bucket, used for private downloads
	Prefix    string
}

// QiniuStore keeps blobs in a Qiniu Kodo bucket. Reads go through signed
// private URLs on the bucket domain.
type QiniuStore struct {
	mac      *auth.Credentials
	bucket   string
	domain   string
	prefix   string
	maxSize  int64
	uploader *storage.FormUploader
	manager  *storage.BucketManager
	http     *req.Client
	now      func() time.Time
}

func NewQiniuStore(cfg QiniuConfig, maxSize int64) *QiniuStore {
	mac := qbox.NewMac(cfg.AccessKey, cfg.SecretKey)
	storageCfg := &storage.Config{UseHTTPS: true}
	return &QiniuStore{
		mac:      mac,
		bucket:   cfg.Bucket,
		domain:   strings.TrimRight(cfg.Domain, "/"),
		prefix:   strings.Trim(cfg.Prefix, "/"),
		maxSize:  maxSize,
		uploader: storage.NewFormUploader(storageCfg),
		manager:  storage.NewBucketManager(mac, storageCfg),
		http:     req.C().SetTimeout(0),
		now:      time.Now,
	}
}

func (s *QiniuStore) Put(ctx context.Context, r io.Reader, contentType string) (Ref, error) {
	sp, err := spool(ctx, r, os.TempDir(), s.maxSize)
	if err != nil {
		return Ref{}, err
	}
	defer sp.discard()

	key := newKey(s.now())
	name := s.objectName(key)
	policy := storage.PutPolicy{Scope: s.bucket + ":" + name}
	var ret storage.PutRet
	err = s.uploader.Put(ctx, &ret, policy.UploadToken(s.mac), name, sp.file, sp.size, &storage.PutExtra{MimeType: contentType})
	if err != nil {
		return Ref{}, fmt.Errorf("%w: qiniu put: %v", ErrStorage, err)
	}

	return Ref{Key: key, Size: sp.size, Checksum: sp.checksum}, nil
}

func (s *QiniuStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	deadline := s.now().Add(time.Hour).Unix()
	url := storage.MakePrivateURL(s.mac, s.domain, s.objectName(key), deadline)

	resp, err := s.http.R().SetContext(ctx).DisableAutoReadResponse().Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: qiniu get: %v", ErrStorage, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: qiniu get: status %d", ErrStorage, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *QiniuStore) Size(ctx context.Context, key string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	info, err := boundByContext(ctx, func() (storage.FileInfo, error) {
		return s.manager.Stat(s.bucket, s.objectName(key))
	})
	if err != nil {
		return 0, s.translate(err, "stat")
	}
	return info.Fsize, nil
}

func (s *QiniuStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := boundByContext(ctx, func() (struct{}, error) {
		return struct{}{}, s.manager.Delete(s.bucket, s.objectName(key))
	})
	if err != nil {
		return s.translate(err, "delete")
	}
	return nil
}

func (s *QiniuStore) Walk(ctx context.Context, fn func(Object) error) error {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	marker := ""
	for {
		page, err := boundByContext(ctx, func() (qiniuPage, error) {
			var p qiniuPage
			var err error
			p.items, _, p.next, p.hasNext, err = s.manager.ListFiles(s.bucket, prefix, "", marker, 1000)
			return p, err
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: qiniu list: %v", ErrStorage, err)
		}
		for _, item := range page.items {
			// PutTime is in units of 100ns
			obj := Object{
				Key:     strings.TrimPrefix(item.Key, prefix),
				Size:    item.Fsize,
				ModTime: time.Unix(0, item.PutTime*100),
			}
			if err := fn(obj); err != nil {
				return err
			}
		}
		if !page.hasNext {
			return nil
		}
		marker = page.next
	}
}

type qiniuPage struct {
	items   []storage.ListItem
	next    string
	hasNext bool
}

// boundByContext returns when call does or when ctx ends, whichever is first.
// BucketManager calls take no context, so an abandoned call keeps running in
// the background until the SDK's own HTTP timeout fires.
func boundByContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *QiniuStore) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *QiniuStore) translate(err error, op string) error {
	var info *client.ErrorInfo
	if errors.As(err, &info) && info.Code == qiniuNoSuchFile {
		return ErrNotFound
	}
	return fmt.Errorf("%w: qiniu %s: %w", ErrStorage, op, err)
}
