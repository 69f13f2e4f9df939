// Package docker talks to the container engine: it lists and creates named
// volumes and runs the short-lived helper containers that build and restore
// archives.
package docker

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/juju/errors"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/ypeckstadt/cobra/internal/models"
)

// Options selects the engine endpoint. Zero values fall back to the
// DOCKER_* environment variables.
type Options struct {
	Host    string
	TLS     bool
	CertDir string
}

// RunOptions describe a helper container.
type RunOptions struct {
	Image string
	Cmd   []string
	Binds []string
}

// API is the part of the engine SDK client used here.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error)
	VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error)
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Client wraps the docker SDK client with the operations backup needs.
type Client struct {
	api    API
	logger zerolog.Logger
}

// NewClient connects to the engine described by opts and checks it answers.
func NewClient(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	if opts.TLS && opts.CertDir != "" {
		clientOpts = append(clientOpts, client.WithTLSClientConfig(
			filepath.Join(opts.CertDir, "ca.pem"),
			filepath.Join(opts.CertDir, "cert.pem"),
			filepath.Join(opts.CertDir, "key.pem"),
		))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating docker client")
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, errors.Annotatef(err, "cannot connect to docker daemon at %s", cli.DaemonHost())
	}

	return NewClientWithAPI(cli, logger), nil
}

// NewClientWithAPI wraps an existing SDK client.
func NewClientWithAPI(api API, logger zerolog.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// ListVolumes returns every named volume, sorted by name.
func (c *Client) ListVolumes(ctx context.Context) ([]models.Volume, error) {
	resp, err := c.api.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, errors.Annotate(err, "listing volumes")
	}

	volumes := make([]models.Volume, 0, len(resp.Volumes))
	for _, vol := range resp.Volumes {
		volumes = append(volumes, fromAPI(*vol))
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].Name < volumes[j].Name })
	return volumes, nil
}

// GetVolume inspects a single volume.
func (c *Client) GetVolume(ctx context.Context, name string) (*models.Volume, error) {
	vol, err := c.api.VolumeInspect(ctx, name)
	if client.IsErrNotFound(err) {
		return nil, errors.NotFoundf("volume %q", name)
	} else if err != nil {
		return nil, errors.Annotatef(err, "inspecting volume %q", name)
	}
	v := fromAPI(vol)
	return &v, nil
}

// VolumeExists reports whether a volume with the given name exists.
func (c *Client) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := c.GetVolume(ctx, name)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	}
	return err == nil, err
}

// CreateVolume creates vol with its driver, options and labels.
func (c *Client) CreateVolume(ctx context.Context, vol models.Volume) error {
	_, err := c.api.VolumeCreate(ctx, volume.CreateOptions{
		Name:       vol.Name,
		Driver:     vol.Driver,
		DriverOpts: vol.Options,
		Labels:     vol.Labels,
	})
	if err != nil {
		return errors.Annotatef(err, "creating volume %q", vol.Name)
	}
	c.logger.Debug().Str("volume", vol.Name).Str("driver", vol.Driver).Msg("volume created")
	return nil
}

// Run starts a helper container, waits for it and returns its combined
// output. The container is always removed. A non-zero exit status is an
// error carrying the output.
func (c *Client) Run(ctx context.Context, opts RunOptions) (string, error) {
	id, err := c.create(ctx, opts)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer func() {
		// The run context may already be cancelled.
		if err := c.api.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true}); err != nil {
			c.logger.Warn().Err(err).Str("container", id).Msg("removing helper container")
		}
	}()

	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", errors.Annotate(err, "starting helper container")
	}

	var status int64
	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", errors.Annotate(err, "waiting for helper container")
		}
	case resp := <-statusCh:
		status = resp.StatusCode
	}

	output, err := c.logs(ctx, id)
	if err != nil {
		return "", errors.Trace(err)
	}
	c.logger.Debug().Str("container", id).Int64("status", status).Msg(output)

	if status != 0 {
		return output, errors.Errorf("helper container exited with code %d: %s", status, output)
	}
	return output, nil
}

func (c *Client) create(ctx context.Context, opts RunOptions) (string, error) {
	config := &container.Config{Image: opts.Image, Cmd: opts.Cmd}
	hostConfig := &container.HostConfig{Binds: opts.Binds}

	resp, err := c.api.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if client.IsErrNotFound(err) {
		if err := c.pull(ctx, opts.Image); err != nil {
			return "", errors.Trace(err)
		}
		resp, err = c.api.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	}
	if err != nil {
		return "", errors.Annotate(err, "creating helper container")
	}
	for _, w := range resp.Warnings {
		c.logger.Warn().Str("container", resp.ID).Msg(w)
	}
	return resp.ID, nil
}

func (c *Client) pull(ctx context.Context, ref string) error {
	c.logger.Info().Str("image", ref).Msg("pulling image")
	rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return errors.Annotatef(err, "pulling image %q", ref)
	}
	defer func() { _ = rc.Close() }()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return errors.Annotatef(err, "pulling image %q", ref)
	}
	return nil
}

func (c *Client) logs(ctx context.Context, id string) (string, error) {
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", errors.Annotate(err, "reading helper container logs")
	}
	defer func() { _ = rc.Close() }()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", errors.Annotate(err, "reading helper container logs")
	}
	return out.String(), nil
}

func fromAPI(vol volume.Volume) models.Volume {
	return models.Volume{
		Name:       vol.Name,
		Driver:     vol.Driver,
		Options:    vol.Options,
		Labels:     vol.Labels,
		Mountpoint: vol.Mountpoint,
		CreatedAt:  vol.CreatedAt,
	}
}
