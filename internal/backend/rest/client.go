// Package rest implements backend.Client over the reporting service's v2
// JSON API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"rpmirror/internal/backend"
	"rpmirror/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 30 * time.Second

// APIError is returned when the reporting service answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Options configures the client.
type Options struct {
	// Endpoint is the base URL of the reporting service, e.g. http://localhost:8080
	Endpoint string
	// Project is the project name used in every API path
	Project string
	// APIKey is sent as a bearer token
	APIKey string
	// Timeout bounds every single HTTP request (default 30s)
	Timeout time.Duration
	// HTTPClient overrides the transport (tests); APIKey is ignored when set
	HTTPClient *http.Client
}

// Client sends requests asynchronously. Every start call returns an
// unresolved handle at once; a goroutine waits for the parent handle, sends
// the request and resolves the new handle. Finish calls wait for the item and
// for the finishes of its children. Failures are logged and never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	pending map[*backend.Handle]*errgroup.Group
}

// New creates a REST client.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if opts.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
		if opts.APIKey != "" {
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"})
			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
			httpClient = oauth2.NewClient(ctx, src)
			httpClient.Timeout = timeout
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.Endpoint, "/") + "/api/v2/" + opts.Project,
		httpClient: httpClient,
		pending:    make(map[*backend.Handle]*errgroup.Group),
	}, nil
}

type entryCreatedRS struct {
	ID string `json:"id"`
}

// groupFor returns the pending-operation group of a launch.
func (c *Client) groupFor(launch *backend.Handle) *errgroup.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.pending[launch]
	if !ok {
		g = &errgroup.Group{}
		c.pending[launch] = g
	}
	return g
}

// StartLaunch starts a launch in the background.
func (c *Client) StartLaunch(ctx context.Context, rq backend.StartLaunchRQ) *backend.Handle {
	ctx = context.WithoutCancel(ctx)
	if rq.UUID == "" {
		rq.UUID = uuid.NewString()
	}
	h := backend.NewHandle(nil)
	c.groupFor(h).Go(func() error {
		var rs entryCreatedRS
		if err := c.do(ctx, http.MethodPost, "/launch", rq, &rs); err != nil {
			logging.Error("Backend", err, "Failed to start launch %q", rq.Name)
			h.Resolve("", err)
			return err
		}
		logging.Debug("Backend", "Launch %q started as %s", rq.Name, rs.ID)
		h.Resolve(rs.ID, nil)
		return nil
	})
	return h
}

// StartItem starts an item once the launch and the parent are resolved.
func (c *Client) StartItem(ctx context.Context, launch, parent *backend.Handle, rq backend.StartItemRQ) *backend.Handle {
	ctx = context.WithoutCancel(ctx)
	if rq.UUID == "" {
		rq.UUID = uuid.NewString()
	}
	h := backend.NewHandle(parent)
	c.groupFor(launch).Go(func() error {
		launchID, err := launch.Wait(ctx)
		if err != nil {
			h.Resolve("", fmt.Errorf("launch unavailable: %w", err))
			return nil
		}
		rq.LaunchUUID = launchID

		path := "/item"
		if parent != nil {
			parentID, err := parent.Wait(ctx)
			if err != nil {
				logging.Warn("Backend", "Skipping item %q: parent unavailable: %v", rq.Name, err)
				h.Resolve("", fmt.Errorf("parent unavailable: %w", err))
				return nil
			}
			path += "/" + parentID
		}

		var rs entryCreatedRS
		if err := c.do(ctx, http.MethodPost, path, rq, &rs); err != nil {
			logging.Error("Backend", err, "Failed to start item %q", rq.Name)
			h.Resolve("", err)
			return nil
		}
		h.Resolve(rs.ID, nil)
		return nil
	})
	return h
}

// FinishItem finishes an item after its children have finished.
func (c *Client) FinishItem(ctx context.Context, launch, item *backend.Handle, rq backend.FinishItemRQ) *backend.Completion {
	ctx = context.WithoutCancel(ctx)
	done := backend.NewCompletion()
	if item == nil {
		done.Complete(fmt.Errorf("finish without item handle"))
		return done
	}
	if parent := item.Parent(); parent != nil {
		parent.Track(done)
	}
	c.groupFor(launch).Go(func() error {
		itemID, err := item.Wait(ctx)
		if err != nil {
			done.Complete(err)
			return nil
		}
		if err := backend.WaitAll(ctx, item.Pending()); err != nil {
			logging.Debug("Backend", "Child of item %s finished with error: %v", itemID, err)
		}
		launchID, _ := launch.ID()
		rq.LaunchUUID = launchID
		if err := c.do(ctx, http.MethodPut, "/item/"+itemID, rq, nil); err != nil {
			logging.Error("Backend", err, "Failed to finish item %s", itemID)
			done.Complete(err)
			return nil
		}
		done.Complete(nil)
		return nil
	})
	return done
}

// FinishLaunch waits for every pending operation of the launch and then
// finishes it.
func (c *Client) FinishLaunch(ctx context.Context, launch *backend.Handle, rq backend.FinishLaunchRQ) *backend.Completion {
	ctx = context.WithoutCancel(ctx)
	done := backend.NewCompletion()
	go func() {
		// A failed launch start is reported by Wait; item failures were logged already.
		_ = c.groupFor(launch).Wait()

		c.mu.Lock()
		delete(c.pending, launch)
		c.mu.Unlock()

		launchID, err := launch.Wait(ctx)
		if err != nil {
			done.Complete(err)
			return
		}
		if err := c.do(ctx, http.MethodPut, "/launch/"+launchID+"/finish", rq, nil); err != nil {
			logging.Error("Backend", err, "Failed to finish launch %s", launchID)
			done.Complete(err)
			return
		}
		logging.Debug("Backend", "Launch %s finished", launchID)
		done.Complete(nil)
	}()
	return done
}

// EmitLog attaches a log entry once the item is resolved.
func (c *Client) EmitLog(ctx context.Context, launch, item *backend.Handle, rq backend.LogRQ) {
	ctx = context.WithoutCancel(ctx)
	c.groupFor(launch).Go(func() error {
		launchID, err := launch.Wait(ctx)
		if err != nil {
			return nil
		}
		rq.LaunchUUID = launchID
		if item != nil {
			itemID, err := item.Wait(ctx)
			if err != nil {
				return nil
			}
			rq.ItemUUID = itemID
		}
		if err := c.do(ctx, http.MethodPost, "/log", rq, nil); err != nil {
			logging.Warn("Backend", "Failed to send log entry: %v", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
