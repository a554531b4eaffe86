package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPTransport talks to the carrier's REST API.
//
// The carrier exposes a LAML-compatible surface:
//
//	POST {base}/Accounts/{account}/Calls            -> originate
//	POST {base}/Accounts/{account}/Calls/{sid}      -> in-call modification
//
// Auth is HTTP basic with account id / auth token. Request bodies are
// form-encoded; responses are JSON.
type HTTPTransport struct {
	baseURL   string
	accountID string
	authToken string
	client    *http.Client
}

// NewHTTPTransport builds a transport against the given API base URL.
// The http.Client timeout is a backstop; callers still pass deadline
// contexts per request.
func NewHTTPTransport(baseURL, accountID, authToken string, client *http.Client) (*HTTPTransport, error) {
	if baseURL == "" || accountID == "" || authToken == "" {
		return nil, fmt.Errorf("carrier: base url, account id and auth token are required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		authToken: authToken,
		client:    client,
	}, nil
}

func (t *HTTPTransport) Name() string { return "carrier-http" }

type placeCallResponse struct {
	CallID         string `json:"call_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

func (t *HTTPTransport) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.From == "" || req.To == "" {
		return PlaceCallResult{}, fmt.Errorf("carrier: from and to are required")
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	if req.Record {
		form.Set("Record", "true")
	}
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	body, err := t.post(ctx, fmt.Sprintf("%s/Accounts/%s/Calls", t.baseURL, t.accountID), form)
	if err != nil {
		return PlaceCallResult{}, err
	}

	var resp placeCallResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PlaceCallResult{}, fmt.Errorf("%w: decode originate response: %v", ErrTransport, err)
	}
	if resp.CallID == "" {
		return PlaceCallResult{}, fmt.Errorf("%w: originate response missing call id", ErrTransport)
	}
	return PlaceCallResult{
		ProviderCallID:         resp.CallID,
		ProviderConversationID: resp.ConversationID,
	}, nil
}

func (t *HTTPTransport) ModifyCall(ctx context.Context, providerCallID string, action Action) error {
	if providerCallID == "" {
		return fmt.Errorf("carrier: provider call id is required")
	}

	form := url.Values{}
	switch action {
	case ActionMute:
		form.Set("Muted", "true")
	case ActionUnmute:
		form.Set("Muted", "false")
	case ActionHangup:
		form.Set("Status", "completed")
	default:
		return fmt.Errorf("carrier: unsupported action %q", action)
	}

	_, err := t.post(ctx, fmt.Sprintf("%s/Accounts/%s/Calls/%s", t.baseURL, t.accountID, url.PathEscape(providerCallID)), form)
	return err
}

func (t *HTTPTransport) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.SetBasicAuth(t.accountID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// Covers context deadline exceeded: a timeout is a failure.
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: carrier returned %d: %s", ErrTransport, resp.StatusCode, truncate(string(body), 256))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
