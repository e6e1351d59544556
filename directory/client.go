package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"panel-lab/auth"
	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/errors"

	"github.com/golang-jwt/jwt/v5"
)

var _ contract.Directory = (*Client)(nil)

const defaultTimeout = 10 * time.Second

// Client calls the directory REST API on behalf of one account.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// WithToken reuses a token obtained earlier.
func (c *Client) WithToken(token string) *Client {
	c.setToken(token)
	return c
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Identity reads who the token belongs to. The signature is the server's
// business; the client only needs the claims.
func (c *Client) Identity() (auth.Identity, error) {
	var claims auth.CustomClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token(), &claims); err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	return auth.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName, Roles: claims.Roles}, nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Register creates the account and keeps its token for the next calls.
func (c *Client) Register(ctx context.Context, email, password, displayName string) error {
	var res tokenResponse
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/auth/register/", body, &res); err != nil {
		return err
	}
	c.setToken(res.Token)
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	var res tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login/", body, &res); err != nil {
		return err
	}
	c.setToken(res.Token)
	return nil
}

func (c *Client) ListPanels(ctx context.Context) ([]domain.PanelSummary, error) {
	var panels []domain.PanelSummary
	err := c.do(ctx, http.MethodGet, "/panels/", nil, &panels)
	return panels, err
}

func (c *Client) CreatePanel(ctx context.Context, req domain.CreatePanelRequest) (domain.PanelID, error) {
	var res createResponse
	err := c.do(ctx, http.MethodPost, "/panels/create/", req, &res)
	return res.ID, err
}

func (c *Client) JoinPanel(ctx context.Context, id domain.PanelID) (domain.JoinTicket, error) {
	var ticket domain.JoinTicket
	err := c.do(ctx, http.MethodPost, panelPath(id, "join"), nil, &ticket)
	return ticket, err
}

func (c *Client) LeavePanel(ctx context.Context, id domain.PanelID) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "leave"), nil, nil)
}

func (c *Client) RaiseHand(ctx context.Context, id domain.PanelID) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "raise-hand"), nil, nil)
}

func (c *Client) LowerHand(ctx context.Context, id domain.PanelID) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "lower-hand"), nil, nil)
}

func (c *Client) MuteAll(ctx context.Context, id domain.PanelID) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "mute-all"), nil, nil)
}

func (c *Client) Promote(ctx context.Context, id domain.PanelID, participantID string) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "promote", participantID), nil, nil)
}

func (c *Client) Kick(ctx context.Context, id domain.PanelID, participantID string) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "kick", participantID), nil, nil)
}

func (c *Client) EndPanel(ctx context.Context, id domain.PanelID) error {
	return c.do(ctx, http.MethodPost, panelPath(id, "end"), nil, nil)
}

func (c *Client) Audit(ctx context.Context, id domain.PanelID) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := c.do(ctx, http.MethodGet, panelPath(id, "audit"), nil, &entries)
	return entries, err
}

func panelPath(id domain.PanelID, segments ...string) string {
	parts := []string{"panels", url.PathEscape(string(id))}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/") + "/"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDirectoryUnreachable, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		return rejection(response)
	}
	if out == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

// rejection turns an error status back into the sentinel the server mapped it from.
func rejection(response *http.Response) error {
	var body errorResponse
	_ = json.NewDecoder(io.LimitReader(response.Body, maxBodySize)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(response.StatusCode)
	}

	var cause error
	switch response.StatusCode {
	case http.StatusUnauthorized:
		cause = errors.ErrUnauthenticated
	case http.StatusForbidden:
		cause = errors.ErrNotPanelHost
	case http.StatusNotFound:
		cause = errors.ErrPanelNotFound
	case http.StatusConflict:
		cause = errors.ErrUserAlreadyExists
	case http.StatusGone:
		cause = errors.ErrPanelEnded
	case http.StatusBadRequest:
		cause = errors.ErrInvalidPayload
	default:
		return fmt.Errorf("%w: %d %s", errors.ErrDirectoryRejected, response.StatusCode, body.Error)
	}
	return fmt.Errorf("%w: %w: %s", errors.ErrDirectoryRejected, cause, body.Error)
}
