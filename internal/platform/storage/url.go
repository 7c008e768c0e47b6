package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URLStyle records how an asset URL was written so copies are returned in the same form.
type URLStyle int

const (
	StyleGS URLStyle = iota
	StylePath
	StyleVirtualHost
)

const (
	storageHost       = "storage.googleapis.com"
	storageBrowseHost = "storage.cloud.google.com"
)

// ErrForeignURL marks URLs that do not point at Cloud Storage.
var ErrForeignURL = errors.New("storage: url is not a cloud storage object")

// ObjectRef names a Cloud Storage object.
type ObjectRef struct {
	Bucket string
	Object string
	Style  URLStyle
}

// ParseObjectURL accepts gs://bucket/object, https://storage.googleapis.com/bucket/object,
// https://storage.cloud.google.com/bucket/object and https://bucket.storage.googleapis.com/object.
func ParseObjectURL(raw string) (ObjectRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ObjectRef{}, errors.New("storage: url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("storage: parse url: %w", err)
	}

	var ref ObjectRef
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "gs":
		ref = ObjectRef{Bucket: u.Host, Object: strings.TrimPrefix(u.Path, "/"), Style: StyleGS}
	case u.Scheme == "https" && (host == storageHost || host == storageBrowseHost):
		bucket, object, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		ref = ObjectRef{Bucket: bucket, Object: object, Style: StylePath}
	case u.Scheme == "https" && strings.HasSuffix(host, "."+storageHost):
		ref = ObjectRef{Bucket: strings.TrimSuffix(host, "."+storageHost), Object: strings.TrimPrefix(u.Path, "/"), Style: StyleVirtualHost}
	default:
		return ObjectRef{}, fmt.Errorf("%w: %s", ErrForeignURL, raw)
	}
	if !ref.valid() {
		return ObjectRef{}, fmt.Errorf("storage: url %q lacks bucket or object", raw)
	}
	return ref, nil
}

// URL renders the reference in its recorded style.
func (r ObjectRef) URL() string {
	object := (&url.URL{Path: r.Object}).EscapedPath()
	switch r.Style {
	case StylePath:
		return fmt.Sprintf("https://%s/%s/%s", storageHost, r.Bucket, object)
	case StyleVirtualHost:
		return fmt.Sprintf("https://%s.%s/%s", r.Bucket, storageHost, object)
	default:
		return fmt.Sprintf("gs://%s/%s", r.Bucket, r.Object)
	}
}

// FileName returns the last path segment of the object.
func (r ObjectRef) FileName() string {
	if idx := strings.LastIndex(r.Object, "/"); idx >= 0 {
		return r.Object[idx+1:]
	}
	return r.Object
}
