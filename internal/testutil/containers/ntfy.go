//go:build integration

package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/wait"
)

const ntfyPort = "80/tcp"

// NtfyContainer is an ntfy server used as the chat channel target.
type NtfyContainer struct {
	container testcontainers.Container
	hostPort  string
	auth      bool
}

// NtfyConfig configures the ntfy server.
type NtfyConfig struct {
	// ImageTag defaults to "latest".
	ImageTag string
	// Auth switches the server to deny-all with a user database.
	Auth bool
}

// NtfyMessage is one cached message on a topic.
type NtfyMessage struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Credentials authenticate topic reads.
type Credentials struct {
	Username string
	Password string
}

// NewNtfyContainer starts an ntfy server. A nil config uses defaults.
func NewNtfyContainer(ctx context.Context, config *NtfyConfig) (*NtfyContainer, error) {
	cfg := NtfyConfig{ImageTag: "latest"}
	if config != nil {
		cfg = *config
		if cfg.ImageTag == "" {
			cfg.ImageTag = "latest"
		}
	}

	req := testcontainers.ContainerRequest{
		Image:        "binwiederhier/ntfy:" + cfg.ImageTag,
		ExposedPorts: []string{ntfyPort},
		Cmd:          []string{"serve", "--cache-file=/var/cache/ntfy/cache.db"},
		Tmpfs:        map[string]string{"/var/cache/ntfy": "rw", "/var/lib/ntfy": "rw"},
		WaitingFor:   wait.ForHTTP("/v1/health").WithPort(ntfyPort).WithStartupTimeout(30 * time.Second),
	}
	if cfg.Auth {
		req.Env = map[string]string{
			"NTFY_AUTH_FILE":           "/var/lib/ntfy/user.db",
			"NTFY_AUTH_DEFAULT_ACCESS": "deny-all",
		}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start ntfy: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("ntfy host: %w", err)
	}
	port, err := container.MappedPort(ctx, ntfyPort)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("ntfy port: %w", err)
	}

	return &NtfyContainer{
		container: container,
		hostPort:  net.JoinHostPort(host, strconv.Itoa(port.Int())),
		auth:      cfg.Auth,
	}, nil
}

// GetHost returns host:port, the form shoutrrr ntfy:// URLs expect.
func (c *NtfyContainer) GetHost(context.Context) string {
	return c.hostPort
}

// ChatURL builds a shoutrrr URL for topic over plain HTTP.
func (c *NtfyContainer) ChatURL(topic string, creds *Credentials) string {
	if creds == nil {
		return fmt.Sprintf("ntfy://%s/%s?scheme=http", c.hostPort, topic)
	}
	return fmt.Sprintf("ntfy://%s:%s@%s/%s?scheme=http",
		creds.Username, url.PathEscape(creds.Password), c.hostPort, topic)
}

// AddUser creates a user. Requires Auth.
func (c *NtfyContainer) AddUser(ctx context.Context, username, password string) error {
	return c.ntfyCommand(ctx, []string{"NTFY_PASSWORD=" + password}, "user", "add", username)
}

// GrantAccess gives username "ro", "wo" or "rw" on topic. Requires Auth.
func (c *NtfyContainer) GrantAccess(ctx context.Context, username, topic, permission string) error {
	return c.ntfyCommand(ctx, nil, "access", username, topic, permission)
}

func (c *NtfyContainer) ntfyCommand(ctx context.Context, env []string, args ...string) error {
	if !c.auth {
		return fmt.Errorf("ntfy %s: server runs without auth", args[0])
	}
	code, out, err := c.container.Exec(ctx, append([]string{"ntfy"}, args...), tcexec.WithEnv(env))
	if err != nil {
		return fmt.Errorf("ntfy %s: %w", args[0], err)
	}
	if code != 0 {
		b, _ := io.ReadAll(out)
		return fmt.Errorf("ntfy %s exited %d: %s", args[0], code, b)
	}
	return nil
}

// Messages polls the cached messages of topic.
func (c *NtfyContainer) Messages(ctx context.Context, topic string, creds *Credentials) ([]NtfyMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/%s/json?poll=1", c.hostPort, topic), http.NoBody)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", topic, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll %s: status %d: %s", topic, resp.StatusCode, b)
	}

	// one JSON object per line
	var messages []NtfyMessage
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var m NtfyMessage
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", topic, err)
		}
		if m.Event == "" || m.Event == "message" {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// Terminate removes the container.
func (c *NtfyContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	return c.container.Terminate(ctx)
}
