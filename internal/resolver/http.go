package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTP queries the JSON room API: GET <endpoint>/<name>.
type HTTP struct {
	endpoint string
	client   *http.Client
}

func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// WithClient replaces the HTTP client, keeping the endpoint.
func (h *HTTP) WithClient(c *http.Client) *HTTP {
	return &HTTP{endpoint: h.endpoint, client: c}
}

type roomResponse struct {
	Error int             `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type roomData struct {
	RoomID flexInt `json:"room_id"`
}

// flexInt accepts both 288016 and "288016".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("room_id %q: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

func (h *HTTP) Resolve(ctx context.Context, name string) (int, error) {
	u := h.endpoint + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("resolve room %q: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("resolve room %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("resolve room %q: http status %d", name, resp.StatusCode)
	}

	var body roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("resolve room %q: decode response: %w", name, err)
	}
	if body.Error != 0 {
		return 0, &ResolveError{Name: name, Code: body.Error, Detail: detail(body.Data)}
	}

	var data roomData
	if err := json.Unmarshal(body.Data, &data); err != nil {
		return 0, fmt.Errorf("resolve room %q: decode data: %w", name, err)
	}
	if data.RoomID <= 0 {
		return 0, fmt.Errorf("resolve room %q: response has no room_id", name)
	}
	return int(data.RoomID), nil
}

// detail renders the data field of an error response. It is usually a
// plain string message.
func detail(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
