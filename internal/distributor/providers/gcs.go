package providers

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// GCSConfig describes the bucket a GCS provider writes to.
type GCSConfig struct {
	Bucket string
}

// GCS is a distributor.Provider backed by Google Cloud Storage.
type GCS struct {
	name   string
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCS builds a GCS provider. Credentials are resolved from the
// environment's application-default credentials.
func NewGCS(ctx context.Context, name string, cfg GCSConfig) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "create GCS client", err)
	}
	return &GCS{
		name:   name,
		client: client,
		bucket: client.Bucket(cfg.Bucket),
	}, nil
}

func (p *GCS) Name() string { return p.name }

func (p *GCS) Put(ctx context.Context, key string, data []byte) error {
	w := p.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("upload %q to gcs", key), err)
	}
	if err := w.Close(); err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("finalize %q on gcs", key), err)
	}
	return nil
}

func (p *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := p.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if err == gcs.ErrObjectNotExist {
			return nil, enigmaerr.New(enigmaerr.NotFound, fmt.Sprintf("key %q not found", key), err)
		}
		return nil, enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("download %q from gcs", key), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.StorageTransient, "read gcs object body", err)
	}
	return data, nil
}

func (p *GCS) Delete(ctx context.Context, key string) error {
	err := p.bucket.Object(key).Delete(ctx)
	if err != nil && err != gcs.ErrObjectNotExist {
		return enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("delete %q from gcs", key), err)
	}
	return nil
}

func (p *GCS) Head(ctx context.Context, key string) (bool, int64, error) {
	attrs, err := p.bucket.Object(key).Attrs(ctx)
	if err == gcs.ErrObjectNotExist {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, enigmaerr.New(enigmaerr.StorageTransient, fmt.Sprintf("stat %q on gcs", key), err)
	}
	return true, attrs.Size, nil
}

func (p *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := p.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		obj, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, enigmaerr.New(enigmaerr.StorageTransient, "list gcs objects", err)
		}
		keys = append(keys, obj.Name)
	}
	return keys, nil
}

func (p *GCS) TestConnection(ctx context.Context) error {
	if _, err := p.bucket.Attrs(ctx); err != nil {
		return enigmaerr.New(enigmaerr.StoragePermanent, "gcs bucket unreachable", err)
	}
	return nil
}
