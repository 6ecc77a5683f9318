package client

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

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/simonvc/custody/internal/ledger"
)

const accountHeader = "X-Account-ID"

type Client struct {
	baseURL    string
	account    ledger.AccountID
	httpClient *http.Client
}

// New returns a client that calls the API at baseURL as account.
func New(baseURL string, account ledger.AccountID) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		account: account,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Account() ledger.AccountID {
	return c.account
}

type Balance struct {
	Account ledger.AccountID `json:"account"`
	Balance ledger.Amount    `json:"balance"`
	Display string           `json:"display"`
}

type Event struct {
	ledger.EventRecord
	Display string `json:"display"`
}

type amountRequest struct {
	Amount  *string `json:"amount,omitempty"`
	Display bool    `json:"display,omitempty"`
}

func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	var result Balance
	if err := c.get(ctx, "/api/v1/balance", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Deposit attaches amount to a deposit call. With display set, amount is in
// display units ("10.50") rather than minor units.
func (c *Client) Deposit(ctx context.Context, amount string, display bool) (*Event, error) {
	var result Event
	body := amountRequest{Amount: &amount, Display: display}
	if err := c.post(ctx, "/api/v1/deposit", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Withdraw requests amount, or the whole balance when amount is nil.
func (c *Client) Withdraw(ctx context.Context, amount *string, display bool) (*Event, error) {
	var result Event
	body := amountRequest{Amount: amount, Display: display}
	if err := c.post(ctx, "/api/v1/withdraw", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var result []Event
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// StreamEvents calls fn for each of the account's events as it commits,
// until ctx is done or the connection drops.
func (c *Client) StreamEvents(ctx context.Context, fn func(Event)) error {
	u, err := url.Parse(c.baseURL + "/api/v1/events/ws")
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{accountHeader: []string{c.account.String()}},
	})
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.CloseNow()

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(ev)
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, result)
}

// APIError is a non-2xx reply. It unwraps to the matching ledger sentinel,
// so errors.Is(err, ledger.ErrAccountWithoutBalance) works across the wire.
type APIError struct {
	Status  int
	Code    ledger.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return ledger.ErrorForKind(e.Code)
}

type apiError struct {
	Error string      `json:"error"`
	Code  ledger.Kind `json:"code"`
}

func (c *Client) doRequest(req *http.Request, result any) error {
	req.Header.Set(accountHeader, c.account.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
		}
		return &APIError{Status: resp.StatusCode, Code: ledger.KindInternal, Message: strings.TrimSpace(string(bodyBytes))}
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// IsNotFound reports whether err means the account has never deposited.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrAccountWithoutBalance)
}
