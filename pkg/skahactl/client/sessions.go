package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"
)

const sessionEndpoint = "v0/session"

type SessionService struct {
	client *Client
}

func (c *Client) Sessions() *SessionService {
	return &SessionService{client: c}
}

// Session is one remote compute session as reported by the service.
type Session struct {
	ID                string `json:"id"`
	UserID            string `json:"userid"`
	Name              string `json:"name"`
	Image             string `json:"image"`
	Type              string `json:"type"`
	Status            string `json:"status"`
	StartTime         string `json:"startTime"`
	ExpiryTime        string `json:"expiryTime"`
	ConnectURL        string `json:"connectURL"`
	RequestedRAM      string `json:"requestedRAM"`
	RequestedCPUCores string `json:"requestedCPUCores"`
	RequestedGPUCores string `json:"requestedGPUCores"`
	RAMInUse          string `json:"ramInUse"`
	CPUCoresInUse     string `json:"cpuCoresInUse"`
}

type SessionListOptions struct {
	Kind   string
	Status string
	All    bool
}

// CreateOptions describes a new session. Name and Image are required; the
// rest fall back to server-side defaults.
type CreateOptions struct {
	Name  string
	Image string
	Kind  string
	Cores int
	RAM   int
	GPUs  int
	Cmd   string
	Args  []string
	Env   map[string]string
}

// Stats is the cluster-wide resource usage summary.
type Stats struct {
	Instances struct {
		Session  int `json:"session"`
		Desktop  int `json:"desktop"`
		Headless int `json:"headless"`
		Total    int `json:"total"`
	} `json:"instances"`
	Cores struct {
		RequestedCPUCores int `json:"requestedCPUCores"`
		CoresAvailable    int `json:"coresAvailable"`
		MaxCores          int `json:"maxCores"`
	} `json:"cores"`
	RAM struct {
		RequestedRAM string `json:"requestedRAM"`
		RAMAvailable string `json:"ramAvailable"`
		MaxRAM       string `json:"maxRAM"`
	} `json:"ram"`
}

// ResourceContext reports the per-session resource options the service
// allows.
type ResourceContext struct {
	Cores struct {
		Default int   `json:"default"`
		Options []int `json:"options"`
	} `json:"cores"`
	Memory struct {
		Default int   `json:"default"`
		Options []int `json:"options"`
	} `json:"memoryGB"`
}

func (s *SessionService) List(ctx context.Context, opts SessionListOptions) ([]Session, error) {
	endpoint := sessionEndpoint
	params := url.Values{}
	if opts.Kind != "" {
		params.Set("type", opts.Kind)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.All {
		params.Set("all", "true")
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint = fmt.Sprintf("%s?%s", endpoint, encoded)
	}
	var sessions []Session
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	endpoint := fmt.Sprintf("%s/%s", sessionEndpoint, url.PathEscape(id))
	var session Session
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create launches a session and returns its id.
func (s *SessionService) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if opts.Name == "" {
		return "", errors.New("session name is required")
	}
	if opts.Image == "" {
		return "", errors.New("session image is required")
	}
	values := url.Values{}
	values.Set("name", opts.Name)
	values.Set("image", opts.Image)
	if opts.Kind != "" {
		values.Set("type", opts.Kind)
	}
	if opts.Cores > 0 {
		values.Set("cores", strconv.Itoa(opts.Cores))
	}
	if opts.RAM > 0 {
		values.Set("ram", strconv.Itoa(opts.RAM))
	}
	if opts.GPUs > 0 {
		values.Set("gpus", strconv.Itoa(opts.GPUs))
	}
	if opts.Cmd != "" {
		values.Set("cmd", opts.Cmd)
	}
	for _, arg := range opts.Args {
		values.Add("args", arg)
	}
	for key, value := range opts.Env {
		values.Add("env", fmt.Sprintf("%s=%s", key, value))
	}
	return s.client.doForm(ctx, sessionEndpoint, values)
}

// Logs returns the session's container log as plain text.
func (s *SessionService) Logs(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?view=logs", sessionEndpoint, url.PathEscape(id))
	return s.client.getText(ctx, endpoint)
}

// Events returns the session's scheduling events as plain text.
func (s *SessionService) Events(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?view=events", sessionEndpoint, url.PathEscape(id))
	return s.client.getText(ctx, endpoint)
}

func (s *SessionService) Destroy(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/%s", sessionEndpoint, url.PathEscape(id))
	return s.client.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// DestroyMany deletes several sessions concurrently and returns the first
// failure, if any.
func (s *SessionService) DestroyMany(ctx context.Context, ids []string) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		group.Go(func() error {
			if err := s.Destroy(groupCtx, id); err != nil {
				return fmt.Errorf("failed to destroy session %s: %w", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

func (s *SessionService) Stats(ctx context.Context) (*Stats, error) {
	endpoint := sessionEndpoint + "?view=stats"
	var stats Stats
	if err := s.client.do(ctx, http.MethodGet, endpoint, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Context fetches the resource options available for new sessions.
func (c *Client) Context(ctx context.Context) (*ResourceContext, error) {
	var resources ResourceContext
	if err := c.do(ctx, http.MethodGet, "v0/context", nil, &resources); err != nil {
		return nil, err
	}
	return &resources, nil
}
