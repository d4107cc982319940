package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shelfsync/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	compareStaleCode = "COMPARE_QUANTITY_STALE"
	quantityName     = "available"
	pageSize         = 250
)

// Client talks to the store's Admin GraphQL endpoint. All requests go
// through a token-bucket limiter so batch jobs stay under the API budget.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	setReason  string
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// Item is a platform inventory item as listed for the metadata and
// append-missing jobs.
type Item struct {
	ID    string
	SKU   string
	Title string
}

func NewClient(cfg config.PlatformConfig, reason string, logger *zerolog.Logger) *Client {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.StoreDomain, cfg.APIVersion)
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		token:      cfg.AccessToken,
		setReason:  reason,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:     logger.With().Str("component", "platform").Logger(),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("platform: limiter: %w", err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("platform: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("platform: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		return &RejectedError{Code: first.Extensions.Code, Message: first.Message}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("platform: decode data: %w", err)
		}
	}
	return nil
}

const readQuantityQuery = `
query readQuantity($itemId: ID!, $locationId: ID!) {
  inventoryItem(id: $itemId) {
    inventoryLevel(locationId: $locationId) {
      quantities(names: ["available"]) {
        name
        quantity
      }
    }
  }
}`

// ReadQuantity returns the current available quantity for one item at the
// configured location. Used by the engine's staleness-retry re-read.
func (c *Client) ReadQuantity(ctx context.Context, itemID, locationID string) (int64, error) {
	var data struct {
		InventoryItem *struct {
			InventoryLevel *struct {
				Quantities []struct {
					Name     string `json:"name"`
					Quantity int64  `json:"quantity"`
				} `json:"quantities"`
			} `json:"inventoryLevel"`
		} `json:"inventoryItem"`
	}

	vars := map[string]any{
		"itemId":     InventoryItemGID(itemID),
		"locationId": LocationGID(locationID),
	}
	if err := c.do(ctx, readQuantityQuery, vars, &data); err != nil {
		return 0, err
	}
	if data.InventoryItem == nil || data.InventoryItem.InventoryLevel == nil {
		return 0, &RejectedError{Code: "NOT_FOUND", Message: fmt.Sprintf("inventory item %s not stocked at location", itemID)}
	}
	for _, q := range data.InventoryItem.InventoryLevel.Quantities {
		if q.Name == quantityName {
			return q.Quantity, nil
		}
	}
	return 0, &RejectedError{Code: "NOT_FOUND", Message: "available quantity missing from response"}
}

const setQuantityMutation = `
mutation setQuantity($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    userErrors {
      code
      field
      message
    }
  }
}`

// ConditionalSetQuantity asks the platform to set the available quantity,
// guarded by a compare-quantity precondition. A stale comparison comes back
// as *PreconditionError so the caller's one-shot retry can trigger.
func (c *Client) ConditionalSetQuantity(ctx context.Context, itemID, locationID string, desired, expected int64) error {
	var data struct {
		InventorySetQuantities struct {
			UserErrors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}

	vars := map[string]any{
		"input": map[string]any{
			"name":                  quantityName,
			"reason":                c.setReason,
			"ignoreCompareQuantity": false,
			"quantities": []map[string]any{{
				"inventoryItemId": InventoryItemGID(itemID),
				"locationId":      LocationGID(locationID),
				"quantity":        desired,
				"compareQuantity": expected,
			}},
		},
	}
	if err := c.do(ctx, setQuantityMutation, vars, &data); err != nil {
		return err
	}
	for _, ue := range data.InventorySetQuantities.UserErrors {
		if ue.Code == compareStaleCode {
			return &PreconditionError{ItemID: itemID, Expected: expected}
		}
		return &RejectedError{Code: ue.Code, Message: ue.Message}
	}

	c.logger.Debug().Str("item_id", itemID).Int64("quantity", desired).Msg("quantity set")
	return nil
}

const quantityMapQuery = `
query quantityMap($locationId: ID!, $first: Int!, $after: String, $query: String) {
  location(id: $locationId) {
    inventoryLevels(first: $first, after: $after, query: $query) {
      edges {
        node {
          item {
            id
          }
          quantities(names: ["available"]) {
            name
            quantity
          }
          updatedAt
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

// QuantityMap pages through every inventory level at the location and
// returns itemID -> available. When updatedSince is non-empty only levels
// changed after that instant are returned, along with the newest updatedAt
// seen (the caller's next cursor).
func (c *Client) QuantityMap(ctx context.Context, locationID, updatedSince string) (map[string]int64, string, error) {
	quantities := make(map[string]int64)
	var after *string
	latest := updatedSince

	for {
		vars := map[string]any{
			"locationId": LocationGID(locationID),
			"first":      pageSize,
		}
		if after != nil {
			vars["after"] = *after
		}
		if updatedSince != "" {
			vars["query"] = fmt.Sprintf("updated_at:>'%s'", updatedSince)
		}

		var data struct {
			Location *struct {
				InventoryLevels struct {
					Edges []struct {
						Node struct {
							Item struct {
								ID string `json:"id"`
							} `json:"item"`
							Quantities []struct {
								Name     string `json:"name"`
								Quantity int64  `json:"quantity"`
							} `json:"quantities"`
							UpdatedAt string `json:"updatedAt"`
						} `json:"node"`
					} `json:"edges"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"inventoryLevels"`
			} `json:"location"`
		}

		if err := c.do(ctx, quantityMapQuery, vars, &data); err != nil {
			return nil, "", err
		}
		if data.Location == nil {
			return nil, "", &RejectedError{Code: "NOT_FOUND", Message: fmt.Sprintf("location %s not found", locationID)}
		}

		levels := data.Location.InventoryLevels
		for _, edge := range levels.Edges {
			for _, q := range edge.Node.Quantities {
				if q.Name == quantityName {
					quantities[NumericID(edge.Node.Item.ID)] = q.Quantity
				}
			}
			if edge.Node.UpdatedAt > latest {
				latest = edge.Node.UpdatedAt
			}
		}
		if !levels.PageInfo.HasNextPage {
			break
		}
		after = &levels.PageInfo.EndCursor
	}

	return quantities, latest, nil
}

const listItemsQuery = `
query listItems($first: Int!, $after: String) {
  inventoryItems(first: $first, after: $after) {
    edges {
      node {
        id
        sku
        variant {
          displayName
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

// ListItems pages through every inventory item in the store.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	var after *string

	for {
		vars := map[string]any{"first": pageSize}
		if after != nil {
			vars["after"] = *after
		}

		var data struct {
			InventoryItems struct {
				Edges []struct {
					Node struct {
						ID      string `json:"id"`
						SKU     string `json:"sku"`
						Variant *struct {
							DisplayName string `json:"displayName"`
						} `json:"variant"`
					} `json:"node"`
				} `json:"edges"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"inventoryItems"`
		}

		if err := c.do(ctx, listItemsQuery, vars, &data); err != nil {
			return nil, err
		}

		for _, edge := range data.InventoryItems.Edges {
			item := Item{ID: NumericID(edge.Node.ID), SKU: edge.Node.SKU}
			if edge.Node.Variant != nil {
				item.Title = edge.Node.Variant.DisplayName
			}
			items = append(items, item)
		}
		if !data.InventoryItems.PageInfo.HasNextPage {
			break
		}
		after = &data.InventoryItems.PageInfo.EndCursor
	}

	return items, nil
}

// InventoryItemGID normalizes a sheet-stored id to the platform's global id.
func InventoryItemGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/InventoryItem/" + id
}

// LocationGID normalizes a configured location id to the global id form.
func LocationGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/Location/" + id
}

// NumericID strips the global-id prefix so sheet cells stay short.
func NumericID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}
