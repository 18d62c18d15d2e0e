package porthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/integrations/terminal"
)

// Client запрашивает live-выдачу терминального шлюза по одному судну.
// Таймаут наш: шлюз может висеть, мы — нет.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type lookupResp struct {
	Found       bool   `json:"found"`
	VoyageFound bool   `json:"voyage_found"`
	Eta         string `json:"eta"`
	Raw         string `json:"raw"`
}

func (c *Client) Lookup(ctx context.Context, vesselFullName, terminalCode string) (terminal.Result, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return terminal.Result{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/terminals/%s/vessels", url.PathEscape(terminalCode))

	q := u.Query()
	q.Set("name", vesselFullName)
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return terminal.Result{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return terminal.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return terminal.Result{}, fmt.Errorf("terminal gateway http %d", resp.StatusCode)
	}

	var r lookupResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return terminal.Result{}, errors.Wrap(err, "decode")
	}

	out := terminal.Result{
		VesselFound: r.Found,
		VoyageFound: r.VoyageFound,
		Raw:         r.Raw,
	}
	if r.Eta != "" {
		out.Eta = &r.Eta
	}
	return out, nil
}
