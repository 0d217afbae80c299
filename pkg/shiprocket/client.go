package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/resellkart/resellkart-backend/pkg/config"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
)

// Provider is the credential-store key for this shipment provider.
const Provider = "shiprocket"

var (
	errCredentialsRequired = errors.New("shiprocket email and password are required")
	errLoggerRequired      = errors.New("shiprocket logger is required")
)

// TokenStore persists the provider auth token across restarts.
type TokenStore interface {
	Load(ctx context.Context, provider string) (token string, expiresAt time.Time, err error)
	Save(ctx context.Context, provider, token string, expiresAt time.Time) error
}

// Client talks to the shipment provider. Auth tokens are cached in memory and
// persisted through the TokenStore so a restart does not force a re-login.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	password   string
	tokenTTL   time.Duration
	pickupName string
	channelID  string
	store      TokenStore
	logger     *logger.Logger

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

// NewClient validates configuration and builds the provider client.
func NewClient(cfg config.ShiprocketConfig, store TokenStore, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if strings.TrimSpace(cfg.Email) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, errCredentialsRequired
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 9 * 24 * time.Hour
	}

	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		email:      cfg.Email,
		password:   cfg.Password,
		tokenTTL:   ttl,
		pickupName: cfg.PickupName,
		channelID:  cfg.ChannelID,
		store:      store,
		logger:     logg,
	}, nil
}

// PickupName returns the configured default pickup location name.
func (c *Client) PickupName() string {
	return c.pickupName
}

// ChannelID returns the configured sales channel id.
func (c *Client) ChannelID() string {
	return c.channelID
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.token != "" && now.Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	if c.store != nil {
		token, expiresAt, err := c.store.Load(ctx, Provider)
		if err == nil && token != "" && now.Before(expiresAt) {
			c.token = token
			c.tokenExpiresAt = expiresAt
			return token, nil
		}
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	expiresAt := now.Add(c.tokenTTL)
	c.token = token
	c.tokenExpiresAt = expiresAt

	if c.store != nil {
		if err := c.store.Save(ctx, Provider, token, expiresAt); err != nil {
			c.logger.Warn(ctx, "persisting shipment provider token failed")
		}
	}

	return token, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload := map[string]string{"email": c.email, "password": c.password}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipment provider login")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading login response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shipment provider login returned %d", resp.StatusCode))
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding login response")
	}
	if decoded.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shipment provider login returned no token")
	}
	return decoded.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding provider request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building provider request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling shipment provider")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading provider response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked server-side; drop the cache so the
		// next call re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shipment provider returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"path": path, "body": string(raw)})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding provider response")
	}
	return nil
}
