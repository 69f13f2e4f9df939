package storage

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/juju/errors"
)

// S3Remote is a bucket, optionally narrowed to a prefix. File ids are
// object keys.
type S3Remote struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Key is the JSON form of an S3 credentials file. Region and Endpoint
// are optional; a set Endpoint selects path style addressing.
type S3Key struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
}

// LoadS3Key reads a JSON credentials file.
func LoadS3Key(file string) (*S3Key, error) {
	data, err := os.ReadFile(file) // #nosec G304 - credentials file chosen by the user
	if err != nil {
		return nil, errors.Annotatef(err, "reading credentials %q", file)
	}
	var key S3Key
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, errors.NotValidf("credentials %q: %v", file, err)
	}
	if key.AccessKeyID == "" || key.SecretAccessKey == "" {
		return nil, errors.NotValidf("credentials %q without access key", file)
	}
	return &key, nil
}

// NewS3Remote connects to the bucket named by folder. A creds file ending
// in .json holds an S3Key; any other file is a shared credentials file.
// Region and endpoint otherwise come from the usual AWS environment
// variables.
func NewS3Remote(ctx context.Context, folder, creds string) (*S3Remote, error) {
	bucket, prefix := splitFolder(folder)
	if bucket == "" {
		return nil, errors.NotValidf("empty bucket name")
	}

	var (
		opts     []func(*config.LoadOptions) error
		endpoint string
	)
	switch {
	case creds == "":
	case strings.EqualFold(filepath.Ext(creds), ".json"):
		key, err := LoadS3Key(creds)
		if err != nil {
			return nil, errors.Trace(err)
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key.AccessKeyID, key.SecretAccessKey, ""),
		))
		if key.Region != "" {
			opts = append(opts, config.WithRegion(key.Region))
		}
		endpoint = key.Endpoint
	default:
		opts = append(opts, config.WithSharedCredentialsFiles([]string{creds}))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "loading AWS config")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		// Custom endpoints are usually S3 compatible stores.
		if o.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	})
	return NewS3RemoteWithClient(client, bucket, prefix), nil
}

// NewS3RemoteWithClient wraps a configured client.
func NewS3RemoteWithClient(client *s3.Client, bucket, prefix string) *S3Remote {
	return &S3Remote{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Remote) localName(fileID string) string {
	return path.Base(fileID)
}

// Upload puts remoteName under the prefix.
func (s *S3Remote) Upload(ctx context.Context, localPath, mimeType, remoteName string, progress ProgressFunc) error {
	r, err := openUpload(localPath, remoteName, progress)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = r.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + remoteName),
		Body:          r,
		ContentLength: aws.Int64(r.status.Total),
		ContentType:   aws.String(mimeType),
	})
	if err != nil {
		return errors.Annotatef(err, "uploading %q", remoteName)
	}
	return nil
}

// Download reads the object with key fileID.
func (s *S3Remote) Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return "", errors.Annotatef(err, "getting object %q", fileID)
	}

	return fetch(localDir, s.localName(fileID), aws.ToInt64(head.ContentLength), useCache, progress, func(w io.Writer) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fileID),
		})
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = out.Body.Close() }()
		_, err = io.Copy(w, out.Body)
		return errors.Trace(err)
	})
}

// List returns the objects under the prefix, oldest first.
func (s *S3Remote) List(ctx context.Context) ([]File, error) {
	var files []File
	modified := map[string]time.Time{}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Annotatef(err, "listing s3://%s/%s", s.bucket, s.prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			ts := aws.ToTime(obj.LastModified).UTC()
			modified[key] = ts
			files = append(files, File{
				ID:           key,
				Name:         path.Base(key),
				CreatedTime:  ts.Format(time.RFC3339),
				ModifiedTime: ts.Format(time.RFC3339),
				Size:         aws.ToInt64(obj.Size),
				MD5:          strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return modified[files[i].ID].Before(modified[files[j].ID])
	})
	return files, nil
}

func (s *S3Remote) Close() error {
	return nil
}
