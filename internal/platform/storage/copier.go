package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Copier performs object copy and delete operations against Cloud Storage.
type Copier struct {
	client *gcs.Client
}

// NewCopier constructs a Copier backed by the provided Cloud Storage client.
func NewCopier(client *gcs.Client) (*Copier, error) {
	if client == nil {
		return nil, errors.New("storage copier: client is required")
	}
	return &Copier{client: client}, nil
}

// CopyObject copies src to dst. Copying an object onto itself is a no-op.
func (c *Copier) CopyObject(ctx context.Context, src, dst ObjectRef) error {
	if c == nil || c.client == nil {
		return errors.New("storage copier: client is not initialised")
	}
	src, dst = src.trimmed(), dst.trimmed()
	if !src.valid() || !dst.valid() {
		return errors.New("storage copier: source and destination must be provided")
	}
	if src.Bucket == dst.Bucket && src.Object == dst.Object {
		return nil
	}

	source := c.client.Bucket(src.Bucket).Object(src.Object)
	target := c.client.Bucket(dst.Bucket).Object(dst.Object)
	_, err := target.CopierFrom(source).Run(ctx)
	return err
}

// DeleteObject removes ref. Objects that no longer exist are treated as deleted.
func (c *Copier) DeleteObject(ctx context.Context, ref ObjectRef) error {
	if c == nil || c.client == nil {
		return errors.New("storage copier: client is not initialised")
	}
	ref = ref.trimmed()
	if !ref.valid() {
		return errors.New("storage copier: object must be provided")
	}
	err := c.client.Bucket(ref.Bucket).Object(ref.Object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (r ObjectRef) trimmed() ObjectRef {
	return ObjectRef{Bucket: strings.TrimSpace(r.Bucket), Object: strings.TrimSpace(r.Object), Style: r.Style}
}

func (r ObjectRef) valid() bool {
	return r.Bucket != "" && r.Object != ""
}
