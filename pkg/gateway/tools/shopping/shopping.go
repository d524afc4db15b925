// Package shopping implements the shopping tools: restaurant recommendations
// and order placement against the Foundry Kitchen backend.
package shopping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/gateway/tools"
)

const (
	ToolGetRecommendations = "get_recommendations"
	ToolCreateOrder        = "create_order"

	// defaultRestaurantID is sent on every order; the backend resolves the
	// actual restaurant from the ordered item.
	defaultRestaurantID = "123-abc-789"

	errNotLoggedIn = "User not logged in"
)

// Client calls the shop backend shared by both tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a shop backend client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Recommendations is the get_recommendations executor.
type Recommendations struct {
	client *Client
}

// NewRecommendations creates the get_recommendations executor.
func NewRecommendations(client *Client) *Recommendations {
	return &Recommendations{client: client}
}

func (r *Recommendations) Name() string { return ToolGetRecommendations }

func (r *Recommendations) Spec() types.ToolSpec {
	return types.ToolSpec{
		Name:        ToolGetRecommendations,
		Description: "Get restaurant recommendations for a user based on their order history and an optional query.",
		Parameters: types.ObjectSchema(map[string]*types.JSONSchema{
			"query": types.StringParam(`A specific query for recommendations, e.g., "something spicy" or "a cheap lunch near me". This should be the user's direct query for food.`),
		}, "query"),
	}
}

// Execute fetches recommendations for the identity. Missing identity and
// backend failures come back as error payloads, never as faults.
func (r *Recommendations) Execute(ctx context.Context, identity string, args json.RawMessage) string {
	if identity == "" {
		return tools.ErrorPayload(errNotLoggedIn)
	}

	var params struct {
		Query string `json:"query"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return tools.ErrorPayload(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	q := url.Values{}
	q.Set("user_id", identity)
	q.Set("query", params.Query)
	reqURL := r.client.baseURL + "/recommendations?" + q.Encode()

	body, err := r.client.get(ctx, reqURL)
	if err != nil {
		r.client.logger.Warn("recommendations fetch failed", "error", err)
		return tools.ErrorPayload("Failed to fetch recommendations.")
	}
	return body
}

// Orders is the create_order executor. It performs no confirmation check of
// its own; confirmation-before-order is enforced by the system prompt.
type Orders struct {
	client *Client
}

// NewOrders creates the create_order executor.
func NewOrders(client *Client) *Orders {
	return &Orders{client: client}
}

func (o *Orders) Name() string { return ToolCreateOrder }

func (o *Orders) Spec() types.ToolSpec {
	return types.ToolSpec{
		Name:        ToolCreateOrder,
		Description: "Places an order for a single food item for the user.",
		Parameters: types.ObjectSchema(map[string]*types.JSONSchema{
			"item": types.StringParam("The name of the single item to order."),
		}, "item"),
	}
}

func (o *Orders) Execute(ctx context.Context, identity string, args json.RawMessage) string {
	if identity == "" {
		return tools.ErrorPayload(errNotLoggedIn)
	}

	var params struct {
		Item string `json:"item"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return tools.ErrorPayload(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	if params.Item == "" {
		return tools.ErrorPayload("item is required")
	}

	payload, _ := json.Marshal(map[string]any{
		"user_id":       identity,
		"restaurant_id": defaultRestaurantID,
		"items":         []string{params.Item},
	})

	body, err := o.client.post(ctx, o.client.baseURL+"/orders", payload)
	if err != nil {
		o.client.logger.Warn("order placement failed", "item", params.Item, "error", err)
		return tools.ErrorPayload(fmt.Sprintf("Failed to create order for %s.", params.Item))
	}
	return body
}

func (c *Client) get(ctx context.Context, reqURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, reqURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// do executes the request and returns the response body, which must be valid
// JSON since it is forwarded verbatim as a tool result payload.
func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("shop backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("shop backend returned non-JSON body")
	}
	return string(body), nil
}
