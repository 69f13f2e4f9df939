package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/juju/errors"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DriveUploadChunk is the resumable upload chunk size.
	DriveUploadChunk = 256 * 1024
	// DriveDownloadChunk is the size of each ranged download request.
	DriveDownloadChunk = 20 * 1024 * 1024

	driveListFields = "nextPageToken, files(id,name,createdTime,modifiedTime,size,md5Checksum)"
)

// DriveRemote is a Google Drive folder accessed with a service account.
type DriveRemote struct {
	service *drive.Service
	folder  string
}

// NewDriveRemote connects to Drive. folder may be empty when only single
// file downloads are needed.
func NewDriveRemote(ctx context.Context, folder string, opts ...option.ClientOption) (*DriveRemote, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating drive client")
	}
	return &DriveRemote{service: service, folder: folder}, nil
}

// Upload creates remoteName in the folder with a chunked upload.
func (d *DriveRemote) Upload(ctx context.Context, localPath, mimeType, remoteName string, progress ProgressFunc) error {
	r, err := openUpload(localPath, remoteName, progress)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = r.Close() }()

	meta := &drive.File{Name: remoteName, MimeType: mimeType}
	if d.folder != "" {
		meta.Parents = []string{d.folder}
	}
	_, err = d.service.Files.Create(meta).
		Media(r.f, googleapi.ChunkSize(DriveUploadChunk), googleapi.ContentType(mimeType)).
		ProgressUpdater(func(current, _ int64) {
			progress.report(Status{Name: remoteName, Current: current, Total: r.status.Total})
		}).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return errors.Annotatef(err, "uploading %q", remoteName)
	}
	progress.report(Status{Name: remoteName, Current: r.status.Total, Total: r.status.Total})
	return nil
}

// Download fetches fileID in ranged chunks.
func (d *DriveRemote) Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error) {
	meta, err := d.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Fields("id", "name", "size").
		Context(ctx).
		Do()
	if err != nil {
		return "", errors.Annotatef(err, "getting file %q", fileID)
	}
	name := filepath.Base(meta.Name)

	return fetch(localDir, name, meta.Size, useCache, progress, func(w io.Writer) error {
		for offset := int64(0); offset < meta.Size; {
			end := offset + DriveDownloadChunk - 1
			if end >= meta.Size {
				end = meta.Size - 1
			}
			n, err := d.downloadRange(ctx, fileID, offset, end, w)
			if err != nil {
				return errors.Trace(err)
			}
			if n == 0 {
				return errors.Errorf("empty response at offset %d of %d", offset, meta.Size)
			}
			offset += n
		}
		return nil
	})
}

func (d *DriveRemote) downloadRange(ctx context.Context, fileID string, start, end int64, w io.Writer) (int64, error) {
	call := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx)
	call.Header().Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := call.Download()
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("unexpected status %s", resp.Status)
	}
	n, err := io.Copy(w, resp.Body)
	return n, errors.Trace(err)
}

// List returns the files whose parent is the folder, oldest first.
func (d *DriveRemote) List(ctx context.Context) ([]File, error) {
	var files []File
	err := d.service.Files.List().
		Q(fmt.Sprintf("'%s' in parents", d.folder)).
		Fields(driveListFields).
		Corpora("allDrives").
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		OrderBy("createdTime").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, File{
					ID:           f.Id,
					Name:         f.Name,
					CreatedTime:  f.CreatedTime,
					ModifiedTime: f.ModifiedTime,
					Size:         f.Size,
					MD5:          f.Md5Checksum,
				})
			}
			return nil
		})
	if err != nil {
		return nil, errors.Annotatef(err, "listing folder %q", d.folder)
	}
	return files, nil
}

// Close is a no-op; the Drive client holds no resources.
func (d *DriveRemote) Close() error {
	return nil
}
