// Package storage moves archives to and from a remote folder. Google Drive
// is the default remote; GCS, S3 and a plain local directory are also
// supported.
package storage

import (
	"context"
	"os"

	"github.com/juju/errors"
)

// Supported remote types.
const (
	TypeDrive = "drive"
	TypeGCS   = "gcs"
	TypeS3    = "s3"
	TypeLocal = "local"
)

// MimeType is the content type archives are uploaded with.
const MimeType = "application/gzip"

// File describes a file in the remote folder.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedTime  string `json:"createdTime,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
	MD5          string `json:"md5Checksum,omitempty"`
}

// Status reports transfer progress. The first status of a download only
// names the file.
type Status struct {
	Name    string
	Current int64
	Total   int64
}

// Fraction returns the completed part of the transfer in [0,1].
func (s Status) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Current) / float64(s.Total)
	if f > 1 {
		return 1
	}
	return f
}

// ProgressFunc receives transfer progress. It may be nil.
type ProgressFunc func(Status)

func (fn ProgressFunc) report(s Status) {
	if fn != nil {
		fn(s)
	}
}

// Remote is a folder of archives in some storage service.
type Remote interface {
	// Upload stores the file at localPath as remoteName.
	Upload(ctx context.Context, localPath, mimeType, remoteName string, progress ProgressFunc) error
	// Download fetches fileID into localDir and returns the local path.
	// With useCache an existing local file of the same name is returned
	// without transferring it again.
	Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error)
	// List returns the folder content, oldest first.
	List(ctx context.Context) ([]File, error)
	Close() error
}

// Config selects and addresses a remote.
type Config struct {
	Type        string
	Credentials string
	Folder      string
}

func (c *Config) needsCredentials() bool {
	return c.Type != TypeLocal
}

// Validate checks the settings needed to reach the folder. It never
// contacts the remote.
func (c *Config) Validate() error {
	return c.validate("folder id", c.Folder)
}

// ValidateFile checks the settings needed to fetch a single file.
func (c *Config) ValidateFile(fileID string) error {
	return c.validate("file id", fileID)
}

func (c *Config) validate(what, value string) error {
	if c.needsCredentials() && c.Credentials == "" {
		return errors.NotValidf("missing credentials file (--creds)")
	}
	if value == "" {
		return errors.NotValidf("missing %s", what)
	}
	if c.Type == TypeLocal && c.Folder == "" {
		return errors.NotValidf("missing folder id")
	}
	if c.needsCredentials() {
		if _, err := os.Stat(c.Credentials); os.IsNotExist(err) {
			return errors.NotFoundf("credentials file %q", c.Credentials)
		} else if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
