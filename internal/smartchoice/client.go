// Package smartchoice queries the public plan-comparison API and picks a plan.
package smartchoice

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
	"golang.org/x/net/html/charset"
)

const maxBodySize = 4 << 20

// Client calls GET {base}/openAPI.xml.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records upstream latency.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a lookup client.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the candidate plans for the given slots. Empty, HTML and
// unparseable bodies yield an empty list with a nil error; only transport
// failures and error statuses are returned as errors.
func (c *Client) Lookup(ctx context.Context, slots domain.SlotMap) ([]domain.Plan, error) {
	q := url.Values{}
	for _, s := range domain.RequiredSlots {
		q.Set(string(s), slots[s])
	}
	q.Set("authkey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openAPI.xml?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}

	c.logger.Info("Looking up plans",
		"voice", slots[domain.SlotVoice],
		"data", slots[domain.SlotData],
		"sms", slots[domain.SlotSMS],
		"age", slots[domain.SlotAge],
		"type", slots[domain.SlotType],
	)

	start := time.Now()
	plans, err := c.do(req)
	c.metrics.ObserveUpstream("smartchoice", time.Since(start).Seconds(), err)
	return plans, err
}

func (c *Client) do(req *http.Request) ([]domain.Plan, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plan lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("plan lookup: status %d", resp.StatusCode)
	}
	return c.parse(body), nil
}

type itemXML struct {
	Telecom  string `xml:"v_tel"`
	PlanName string `xml:"v_plan_name"`
	Price    string `xml:"v_plan_price"`
	Voice    string `xml:"v_plan_display_voice"`
	Data     string `xml:"v_plan_display_data"`
	SMS      string `xml:"v_plan_display_sms"`
}

var bom = []byte("\xef\xbb\xbf")

// parse reads every <item> element regardless of nesting. A malformed
// document yields no plans.
func (c *Client) parse(body []byte) []domain.Plan {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, bom)
	if len(body) == 0 {
		c.logger.Warn("Plan lookup returned an empty body")
		return nil
	}
	head := strings.ToLower(string(body[:min(len(body), 16)]))
	if strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html") {
		c.logger.Warn("Plan lookup returned HTML instead of XML")
		return nil
	}

	var plans []domain.Plan
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("Failed to parse plan lookup XML", "error", err)
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}
		var item itemXML
		if err := dec.DecodeElement(&item, &start); err != nil {
			c.logger.Warn("Failed to decode plan item", "error", err)
			return nil
		}
		plans = append(plans, domain.Plan{
			Telecom:  strings.TrimSpace(item.Telecom),
			PlanName: strings.TrimSpace(item.PlanName),
			Price:    strings.TrimSpace(item.Price),
			Voice:    strings.TrimSpace(item.Voice),
			Data:     strings.TrimSpace(item.Data),
			SMS:      strings.TrimSpace(item.SMS),
		})
	}
	c.logger.Debug("Parsed plan lookup response", "count", len(plans))
	return plans
}
