package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *httpClient) PlaceOrder(ctx context.Context, req PlaceRequest) (PlacedOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("marshal place request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return PlacedOrder{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return PlacedOrder{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return PlacedOrder{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PlacedOrder{}, fmt.Errorf("partner place order: status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var ack struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return PlacedOrder{}, fmt.Errorf("decode partner response: %w", err)
	}
	if ack.ID == "" {
		return PlacedOrder{}, fmt.Errorf("partner response missing order id: %s", truncate(respBody, 512))
	}

	c.logger.Info("partner order placed",
		zap.String("order_number", req.OrderNumber),
		zap.String("external_order_id", ack.ID),
	)
	return PlacedOrder{ExternalOrderID: ack.ID, RawRequest: body, RawResponse: respBody}, nil
}

func (c *httpClient) OrderStatus(ctx context.Context, externalOrderID string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+externalOrderID, nil)
	if err != nil {
		return Status{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Status{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Status{}, fmt.Errorf("partner order status: status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var out struct {
		State string `json:"state"`
		Meta  struct {
			TrackingLink string `json:"trackingLink"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Status{}, fmt.Errorf("decode partner status: %w", err)
	}
	return Status{State: out.State, TrackingLink: out.Meta.TrackingLink}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
