package connectable

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/roach88/bowtie/internal/channel"
)

type dockerClient interface {
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Container runs an implementation image under docker.
type Container struct {
	image string

	mu  sync.Mutex
	cli dockerClient
}

// NewContainer describes an image. A nil client is replaced by one
// configured from the environment on first use.
func NewContainer(image string, cli dockerClient) *Container {
	return &Container{image: image, cli: cli}
}

// Name implements Connectable.
func (c *Container) Name() string {
	return "image:" + c.image
}

// Image is the fully qualified image reference.
func (c *Container) Image() string {
	return c.image
}

// Connect implements Connectable.
func (c *Container) Connect(ctx context.Context) (channel.Transport, error) {
	cli, err := c.client()
	if err != nil {
		return nil, err
	}

	id, err := c.create(ctx, cli)
	if err != nil {
		return nil, err
	}
	remove := func() {
		_ = cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}

	attach, err := cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		remove()
		return nil, fmt.Errorf("attach %s: %w", c.image, err)
	}
	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		if attach.Conn != nil {
			attach.Close()
		}
		remove()
		return nil, fmt.Errorf("start %s: %w", c.image, err)
	}

	t := &containerTransport{cli: cli, id: id, attach: attach, pump: newPump()}
	go func() {
		if attach.Reader != nil {
			_, _ = stdcopy.StdCopy(t.pump.writer(channel.Stdout), t.pump.writer(channel.Stderr), attach.Reader)
		}
		t.pump.finish()
	}()
	return t, nil
}

func (c *Container) client() (dockerClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		return c.cli, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	c.cli = cli
	return cli, nil
}

func (c *Container) create(ctx context.Context, cli dockerClient) (string, error) {
	config := &container.Config{
		Image:        c.image,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		Labels:       map[string]string{"org.bowtie.harness": "true"},
	}
	hostConfig := &container.HostConfig{NetworkMode: "none"}

	resp, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if errdefs.IsNotFound(err) {
		if pullErr := c.pull(ctx, cli); pullErr != nil {
			return "", pullErr
		}
		resp, err = cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	}
	if err != nil {
		return "", fmt.Errorf("create container for %s: %w", c.image, err)
	}
	return resp.ID, nil
}

func (c *Container) pull(ctx context.Context, cli dockerClient) error {
	reader, err := cli.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", c.image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("consume pull output for %s: %w", c.image, err)
	}
	return nil
}

type containerTransport struct {
	cli    dockerClient
	id     string
	attach types.HijackedResponse
	pump   *pump

	mu      sync.Mutex
	removed bool
}

func (t *containerTransport) Write(b []byte) (int, error) {
	if t.attach.Conn == nil {
		return 0, channel.ErrStreamClosed
	}
	return t.attach.Conn.Write(b)
}

func (t *containerTransport) Chunks() <-chan channel.Chunk {
	return t.pump.chunks
}

func (t *containerTransport) Exited() bool {
	return t.pump.exited.Load()
}

func (t *containerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return fmt.Errorf("container %s: %w", t.id, channel.ErrAlreadyGone)
	}
	t.removed = true
	t.pump.stop()
	if t.attach.Conn != nil {
		t.attach.Close()
	}

	err := t.cli.ContainerRemove(context.Background(), t.id, container.RemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("container %s: %w", t.id, channel.ErrAlreadyGone)
	}
	if err != nil {
		return fmt.Errorf("remove container %s: %w", t.id, err)
	}
	return nil
}
