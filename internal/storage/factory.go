package storage

import (
	"context"

	"github.com/juju/errors"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/ypeckstadt/cobra/pkg/version"
)

// Open connects to the remote cfg describes. Downloads
// of the returned remote go through the cache index of their directory.
func Open(ctx context.Context, cfg *Config) (Remote, error) {
	var (
		remote Remote
		err    error
	)
	switch cfg.Type {
	case TypeDrive, "":
		remote, err = NewDriveRemote(ctx, cfg.Folder,
			option.WithCredentialsFile(cfg.Credentials),
			option.WithScopes(drive.DriveScope),
			option.WithUserAgent(version.UserAgent()),
		)
	case TypeGCS:
		remote, err = NewGCSRemote(ctx, cfg.Folder,
			option.WithCredentialsFile(cfg.Credentials),
			option.WithUserAgent(version.UserAgent()),
		)
	case TypeS3:
		remote, err = NewS3Remote(ctx, cfg.Folder, cfg.Credentials)
	case TypeLocal:
		remote, err = NewLocalRemote(cfg.Folder)
	default:
		return nil, errors.NotValidf("storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return WithCache(remote), nil
}
