package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hodlhunt/internal/auth"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response from the server. Anything else returned by
// the client is a transport failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err came back from the server rather than the
// network.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, username, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Ocean(ctx context.Context, accessToken string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/ocean", accessToken, nil, "")
}

func (c *Client) InitOcean(ctx context.Context, accessToken, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/ocean/init", accessToken, map[string]any{}, idem)
}

func (c *Client) DailyUpdate(ctx context.Context, accessToken string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/ocean/daily", accessToken, map[string]any{}, "")
}

func (c *Client) Quote(ctx context.Context, accessToken string, value uint64) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/ocean/quote?value="+strconv.FormatUint(value, 10), accessToken, nil, "")
}

func (c *Client) MyFish(ctx context.Context, accessToken string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/fish", accessToken, nil, "")
}

func (c *Client) FishInfo(ctx context.Context, accessToken string, fishID uint64) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, fishPath(fishID, ""), accessToken, nil, "")
}

func (c *Client) FishValue(ctx context.Context, accessToken string, fishID uint64) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, fishPath(fishID, "value"), accessToken, nil, "")
}

func (c *Client) CreateFish(ctx context.Context, accessToken, name string, deposit uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/fish", accessToken, map[string]any{
		"name":    name,
		"deposit": deposit,
	}, idem)
}

func (c *Client) Feed(ctx context.Context, accessToken string, fishID, amount uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(fishID, "feed"), accessToken, map[string]any{
		"amount": amount,
	}, idem)
}

func (c *Client) Hunt(ctx context.Context, accessToken string, hunterID, preyID, expectedPreyShare uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(hunterID, "hunt"), accessToken, map[string]any{
		"prey_id":             preyID,
		"expected_prey_share": expectedPreyShare,
	}, idem)
}

func (c *Client) PlaceMark(ctx context.Context, accessToken string, hunterID, preyID uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(hunterID, "marks"), accessToken, map[string]any{
		"prey_id": preyID,
	}, idem)
}

func (c *Client) Exit(ctx context.Context, accessToken string, fishID uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(fishID, "exit"), accessToken, map[string]any{}, idem)
}

func (c *Client) Resurrect(ctx context.Context, accessToken string, oldFishID uint64, name string, deposit uint64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(oldFishID, "resurrect"), accessToken, map[string]any{
		"name":    name,
		"deposit": deposit,
	}, idem)
}

func (c *Client) Transfer(ctx context.Context, accessToken string, fishID uint64, newOwner, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, fishPath(fishID, "transfer"), accessToken, map[string]any{
		"new_owner": newOwner,
	}, idem)
}

func (c *Client) Leaderboard(ctx context.Context, accessToken string, limit int) (map[string]any, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.Do(ctx, http.MethodGet, path, accessToken, nil, "")
}

func (c *Client) Wallet(ctx context.Context, accessToken string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/wallet", accessToken, nil, "")
}

type EventQuery struct {
	Kind   string
	FishID uint64
	Owner  string
	Limit  int
}

func (c *Client) Events(ctx context.Context, accessToken string, q EventQuery) (map[string]any, error) {
	v := url.Values{}
	if q.Kind != "" {
		v.Set("kind", q.Kind)
	}
	if q.FishID != 0 {
		v.Set("fish_id", strconv.FormatUint(q.FishID, 10))
	}
	if q.Owner != "" {
		v.Set("owner", q.Owner)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/v1/events"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	return c.Do(ctx, http.MethodGet, path, accessToken, nil, "")
}

func (c *Client) SyncReplay(ctx context.Context, accessToken string, commands []map[string]any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/sync/replay", accessToken, map[string]any{
		"commands": commands,
	}, "")
}

func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func fishPath(id uint64, action string) string {
	p := "/v1/fish/" + strconv.FormatUint(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(out)
}
