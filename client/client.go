// Package client is the prover side of zkauth: it derives keys from a
// password and runs the protocol against a server over HTTP.
package client

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

	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/models"
	"github.com/84adam/zkauth/utils"
)

// APIError is a non-2xx server reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to one zkauth server.
type Client struct {
	baseURL string
	http    *http.Client

	// AllowWeakPasswords skips the strength check on Register.
	AllowWeakPasswords bool
	// Now is the clock used for non-interactive proofs.
	Now func() time.Time

	mu     sync.Mutex
	params map[string]models.GroupParams
}

// NewClient returns a client for baseURL. A nil httpClient gets a default
// with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		Now:     time.Now,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends payload as JSON and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}, token string) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(responseData, &env); err != nil {
		return fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// group returns the server's group for algorithm, checking that its
// generators match the local parameters.
func (c *Client) group(ctx context.Context, algorithm string) (crypto.Group, error) {
	if algorithm == "" {
		algorithm = models.AlgorithmInteractive
	}

	c.mu.Lock()
	params := c.params
	c.mu.Unlock()
	if params == nil {
		var list []models.GroupParams
		if err := c.do(ctx, http.MethodGet, "/api/params", nil, &list, ""); err != nil {
			return nil, fmt.Errorf("failed to fetch parameters: %w", err)
		}
		params = make(map[string]models.GroupParams, len(list))
		for _, p := range list {
			params[p.Algorithm] = p
		}
		c.mu.Lock()
		c.params = params
		c.mu.Unlock()
	}

	p, ok := params[algorithm]
	if !ok {
		return nil, fmt.Errorf("server does not offer algorithm %q", algorithm)
	}
	group, err := crypto.NewGroup(p.Group)
	if err != nil {
		return nil, err
	}
	if group.EncodeElement(group.G()) != p.G || group.EncodeElement(group.H()) != p.H {
		return nil, fmt.Errorf("server parameters for %s do not match", p.Group)
	}
	return group, nil
}

// Register derives public keys from password and registers them for
// identity under algorithm.
func (c *Client) Register(ctx context.Context, identity, password, algorithm string) error {
	if err := utils.ValidateIdentity(identity); err != nil {
		return err
	}
	if !c.AllowWeakPasswords {
		if _, err := utils.CheckPasswordStrength(password, identity); err != nil {
			return err
		}
	}

	group, err := c.group(ctx, algorithm)
	if err != nil {
		return err
	}
	cp := crypto.NewChaumPedersen(group)
	y1, y2, err := cp.GeneratePublicKeys(ctx, cp.SecretFromPassword(identity, password))
	if err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, "/api/register", models.RegisterRequest{
		Identity:  identity,
		Algorithm: algorithm,
		Y1:        group.EncodeElement(y1),
		Y2:        group.EncodeElement(y2),
	}, nil, "")
}

// Login authenticates with the protocol named by algorithm.
func (c *Client) Login(ctx context.Context, identity, password, algorithm string) (*models.Session, error) {
	if algorithm == models.AlgorithmNonInteractive {
		return c.LoginNonInteractive(ctx, identity, password)
	}
	return c.LoginInteractive(ctx, identity, password)
}

// LoginInteractive commits, asks for a challenge and answers it.
func (c *Client) LoginInteractive(ctx context.Context, identity, password string) (*models.Session, error) {
	group, err := c.group(ctx, models.AlgorithmInteractive)
	if err != nil {
		return nil, err
	}
	cp := crypto.NewChaumPedersen(group)
	commitment, err := cp.Commit(ctx)
	if err != nil {
		return nil, err
	}

	var challenge models.ChallengeResponse
	err = c.do(ctx, http.MethodPost, "/api/challenge", models.ChallengeRequest{
		Identity: identity,
		R1:       group.EncodeElement(commitment.R1),
		R2:       group.EncodeElement(commitment.R2),
	}, &challenge, "")
	if err != nil {
		return nil, err
	}
	cv, err := group.DecodeScalar(challenge.C)
	if err != nil {
		return nil, fmt.Errorf("server sent a malformed challenge: %w", err)
	}

	s := cp.SolveChallenge(commitment.K, cv, cp.SecretFromPassword(identity, password))
	var session models.Session
	err = c.do(ctx, http.MethodPost, "/api/verify", models.VerifyRequest{
		AuthID: challenge.AuthID,
		S:      group.EncodeScalar(s),
	}, &session, "")
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// LoginNonInteractive sends a single Fiat-Shamir proof.
func (c *Client) LoginNonInteractive(ctx context.Context, identity, password string) (*models.Session, error) {
	group, err := c.group(ctx, models.AlgorithmNonInteractive)
	if err != nil {
		return nil, err
	}
	cp := crypto.NewChaumPedersen(group)
	x := cp.SecretFromPassword(identity, password)
	y1, y2, err := cp.GeneratePublicKeys(ctx, x)
	if err != nil {
		return nil, err
	}
	issuedAt := c.Now().Unix()
	proof, err := cp.ProveNonInteractive(ctx, identity, x, y1, y2, issuedAt)
	if err != nil {
		return nil, err
	}

	var session models.Session
	err = c.do(ctx, http.MethodPost, "/api/authenticate", models.AuthenticateRequest{
		Identity: identity,
		C:        group.EncodeScalar(proof.C),
		S:        group.EncodeScalar(proof.S),
		IssuedAt: issuedAt,
	}, &session, "")
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Session returns who token belongs to.
func (c *Client) Session(ctx context.Context, token string) (*models.SessionInfo, error) {
	var info models.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &info, token); err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout revokes the session behind token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil, token)
}
