package storage

import (
	"context"
	"encoding/hex"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/juju/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSRemote is a bucket, optionally narrowed to a prefix. File ids are
// object names.
type GCSRemote struct {
	client *storage.Client
	bucket string
	prefix string
}

// splitFolder splits "bucket/some/prefix" into bucket and "some/prefix/".
func splitFolder(folder string) (string, string) {
	bucket, prefix, _ := strings.Cut(strings.Trim(folder, "/"), "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix
}

// NewGCSRemote connects to the bucket named by folder.
func NewGCSRemote(ctx context.Context, folder string, opts ...option.ClientOption) (*GCSRemote, error) {
	bucket, prefix := splitFolder(folder)
	if bucket == "" {
		return nil, errors.NotValidf("empty bucket name")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating GCS client")
	}
	return &GCSRemote{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSRemote) localName(fileID string) string {
	return path.Base(fileID)
}

// Upload writes remoteName under the prefix.
func (g *GCSRemote) Upload(ctx context.Context, localPath, mimeType, remoteName string, progress ProgressFunc) error {
	r, err := openUpload(localPath, remoteName, progress)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = r.Close() }()

	w := g.client.Bucket(g.bucket).Object(g.prefix + remoteName).NewWriter(ctx)
	w.ContentType = mimeType
	w.ChunkSize = DriveUploadChunk
	w.ProgressFunc = func(n int64) {
		progress.report(Status{Name: remoteName, Current: n, Total: r.status.Total})
	}

	if _, err := io.Copy(w, r.f); err != nil {
		_ = w.Close()
		return errors.Annotatef(err, "uploading %q", remoteName)
	}
	if err := w.Close(); err != nil {
		return errors.Annotatef(err, "uploading %q", remoteName)
	}
	return nil
}

// Download reads the object named fileID.
func (g *GCSRemote) Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error) {
	obj := g.client.Bucket(g.bucket).Object(fileID)
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", errors.NotFoundf("object %q", fileID)
	} else if err != nil {
		return "", errors.Annotatef(err, "getting object %q", fileID)
	}

	return fetch(localDir, g.localName(fileID), attrs.Size, useCache, progress, func(w io.Writer) error {
		rc, err := obj.NewReader(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = rc.Close() }()
		_, err = io.Copy(w, rc)
		return errors.Trace(err)
	})
}

// List returns the objects under the prefix, oldest first.
func (g *GCSRemote) List(ctx context.Context) ([]File, error) {
	var files []File
	created := map[string]time.Time{}

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotatef(err, "listing gs://%s/%s", g.bucket, g.prefix)
		}
		if attrs.Name == "" {
			// Sub-prefix entry.
			continue
		}
		created[attrs.Name] = attrs.Created
		files = append(files, File{
			ID:           attrs.Name,
			Name:         path.Base(attrs.Name),
			CreatedTime:  attrs.Created.UTC().Format(time.RFC3339),
			ModifiedTime: attrs.Updated.UTC().Format(time.RFC3339),
			Size:         attrs.Size,
			MD5:          hex.EncodeToString(attrs.MD5),
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return created[files[i].ID].Before(created[files[j].ID])
	})
	return files, nil
}

func (g *GCSRemote) Close() error {
	return g.client.Close()
}
