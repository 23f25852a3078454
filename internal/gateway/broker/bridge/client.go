// Package bridge implements broker.Connector against the HTTP terminal
// bridge that fronts the trading terminal. The bridge exposes one logical
// session whose underlying client API is not reentrant, so every call is
// serialized behind the session mutex.
package bridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bastion/internal/config"
	"bastion/internal/gateway/broker"

	"github.com/tidwall/gjson"
)

// Client wraps the terminal bridge REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string

	// One logical terminal session; calls must not interleave.
	sessionMu sync.Mutex
}

// NewClient constructs a bridge client from configuration.
func NewClient(cfg config.BridgeConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.bridge.api_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing broker.bridge.api_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		authToken:  strings.TrimSpace(cfg.AuthToken),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "bridge" }

func (c *Client) Connect(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodPost, "connect", nil, nil)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(body, "connected").Bool() {
		return broker.NewError(broker.KindSustained, "connect", "terminal refused session", nil)
	}
	return nil
}

func (c *Client) AccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "account", nil, nil)
	if err != nil {
		return broker.AccountSnapshot{}, err
	}
	res := gjson.ParseBytes(body)
	return broker.AccountSnapshot{
		Balance:    res.Get("balance").Float(),
		Equity:     res.Get("equity").Float(),
		Margin:     res.Get("margin").Float(),
		MarginFree: res.Get("margin_free").Float(),
		Currency:   res.Get("currency").String(),
		UpdatedAt:  time.Now(),
	}, nil
}

func (c *Client) OpenPositions(ctx context.Context, instrument string) ([]broker.Position, error) {
	query := url.Values{}
	if instrument != "" {
		query.Set("symbol", instrument)
	}
	body, err := c.do(ctx, http.MethodGet, "positions", query, nil)
	if err != nil {
		return nil, err
	}
	var positions []broker.Position
	gjson.GetBytes(body, "positions").ForEach(func(_, item gjson.Result) bool {
		positions = append(positions, parsePosition(item))
		return true
	})
	return positions, nil
}

func (c *Client) SymbolSnapshot(ctx context.Context, instrument string) (broker.SymbolSnapshot, error) {
	if strings.TrimSpace(instrument) == "" {
		return broker.SymbolSnapshot{}, broker.NewError(broker.KindRejected, "symbol_snapshot", "instrument cannot be empty", nil)
	}
	body, err := c.do(ctx, http.MethodGet, "symbols/"+url.PathEscape(instrument), nil, nil)
	if err != nil {
		return broker.SymbolSnapshot{}, err
	}
	res := gjson.ParseBytes(body)
	snap := broker.SymbolSnapshot{
		Instrument: instrument,
		Bid:        res.Get("bid").Float(),
		Ask:        res.Get("ask").Float(),
		Point:      res.Get("point").Float(),
		Digits:     int(res.Get("digits").Int()),
		VolumeMin:  res.Get("volume_min").Float(),
		VolumeMax:  res.Get("volume_max").Float(),
		VolumeStep: res.Get("volume_step").Float(),
		TickValue:  res.Get("tick_value").Float(),
	}
	if snap.Bid <= 0 || snap.Ask <= 0 {
		return broker.SymbolSnapshot{}, broker.NewError(broker.KindTransient, "symbol_snapshot", "no quote for "+instrument, nil)
	}
	return snap, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	payload := map[string]any{
		"symbol":    req.Instrument,
		"direction": string(req.Direction),
		"volume":    req.Volume,
		"sl":        req.StopLoss,
		"tp":        req.TakeProfit,
		"magic":     req.Magic,
		"comment":   req.Comment,
	}
	body, err := c.do(ctx, http.MethodPost, "orders", nil, payload)
	if err != nil {
		return broker.OrderResult{}, err
	}
	res := gjson.ParseBytes(body)
	if err := retcodeError("place_order", res); err != nil {
		return broker.OrderResult{}, err
	}
	return broker.OrderResult{
		Ticket: res.Get("ticket").Int(),
		Price:  res.Get("price").Float(),
		Volume: res.Get("volume").Float(),
	}, nil
}

func (c *Client) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	payload := map[string]any{"ticket": ticket}
	if stopLoss > 0 {
		payload["sl"] = stopLoss
	}
	if takeProfit > 0 {
		payload["tp"] = takeProfit
	}
	body, err := c.do(ctx, http.MethodPost, "positions/modify", nil, payload)
	if err != nil {
		return err
	}
	return retcodeError("modify_position", gjson.ParseBytes(body))
}

func (c *Client) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	payload := map[string]any{"ticket": ticket}
	if volume > 0 {
		payload["volume"] = volume
	}
	body, err := c.do(ctx, http.MethodPost, "positions/close", nil, payload)
	if err != nil {
		return err
	}
	return retcodeError("close_position", gjson.ParseBytes(body))
}

func (c *Client) HistoricalDeals(ctx context.Context, from, to time.Time, position int64) ([]broker.Deal, error) {
	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))
	if position > 0 {
		query.Set("position", fmt.Sprintf("%d", position))
	}
	body, err := c.do(ctx, http.MethodGet, "deals", query, nil)
	if err != nil {
		return nil, err
	}
	var deals []broker.Deal
	gjson.GetBytes(body, "deals").ForEach(func(_, item gjson.Result) bool {
		deals = append(deals, broker.Deal{
			Ticket:     item.Get("ticket").Int(),
			Position:   item.Get("position").Int(),
			Instrument: item.Get("symbol").String(),
			Direction:  parseDirection(item.Get("direction").String()),
			Volume:     item.Get("volume").Float(),
			Price:      item.Get("price").Float(),
			Profit:     item.Get("profit").Float(),
			Commission: item.Get("commission").Float(),
			Swap:       item.Get("swap").Float(),
			Magic:      int(item.Get("magic").Int()),
			Time:       time.Unix(item.Get("time").Int(), 0).UTC(),
		})
		return true
	})
	return deals, nil
}

// do performs one serialized request against the bridge and classifies
// transport-level failures.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/" + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, broker.NewError(broker.KindRejected, path, "encoding payload failed", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reqBody)
	if err != nil {
		return nil, broker.NewError(broker.KindRejected, path, "building request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, broker.NewError(broker.KindTransient, path, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, broker.NewError(broker.KindTransient, path, "reading response failed", err)
	}

	switch {
	case resp.StatusCode/100 == 2:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, broker.NewError(broker.KindSustained, path, fmt.Sprintf("auth failed status=%d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, broker.NewError(broker.KindNotFound, path, "not found", nil)
	case resp.StatusCode/100 == 4:
		return nil, broker.NewError(broker.KindRejected, path, fmt.Sprintf("status=%d body=%s", resp.StatusCode, truncate(body)), nil)
	default:
		return nil, broker.NewError(broker.KindTransient, path, fmt.Sprintf("status=%d", resp.StatusCode), nil)
	}
}

func parsePosition(item gjson.Result) broker.Position {
	return broker.Position{
		Ticket:       item.Get("ticket").Int(),
		Instrument:   item.Get("symbol").String(),
		Direction:    parseDirection(item.Get("direction").String()),
		Volume:       item.Get("volume").Float(),
		EntryPrice:   item.Get("open_price").Float(),
		StopLoss:     item.Get("sl").Float(),
		TakeProfit:   item.Get("tp").Float(),
		OpenedAt:     time.Unix(item.Get("open_time").Int(), 0).UTC(),
		CurrentPrice: item.Get("current_price").Float(),
		Profit:       item.Get("profit").Float(),
		Magic:        int(item.Get("magic").Int()),
		Comment:      item.Get("comment").String(),
	}
}

func parseDirection(raw string) broker.Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "short", "sell":
		return broker.DirectionShort
	default:
		return broker.DirectionLong
	}
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
