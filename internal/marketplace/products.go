package marketplace

import (
	"context"
	"fmt"
	"strconv"
)

const (
	APIProductGet     = "/product/get"
	APIItemSearch     = "/traffic/item/search"
	DefaultPageSize   = 20
	MaxSearchAllPages = 1000
)

func (c *Client) ProductInfo(ctx context.Context, itemID, accessToken string) (Response, error) {
	req := NewRequest(APIProductGet).AddParam("item_id", itemID)
	return c.Execute(ctx, req, accessToken)
}

func (c *Client) SearchItems(ctx context.Context, shopID string, pageNo, pageSize int, accessToken string) (Response, error) {
	req := NewRequest(APIItemSearch).
		AddParam("page_no", strconv.Itoa(pageNo)).
		AddParam("page_size", strconv.Itoa(pageSize)).
		AddParam("shop_id", shopID)
	return c.Execute(ctx, req, accessToken)
}

// SearchAll walks item search pages of DefaultPageSize from page one until a
// page comes back empty or short. It gives up after MaxSearchAllPages.
func (c *Client) SearchAll(ctx context.Context, shopID, accessToken string) ([]any, error) {
	var all []any
	for page := 1; ; page++ {
		if page > MaxSearchAllPages {
			return nil, fmt.Errorf("search shop %s: more than %d pages", shopID, MaxSearchAllPages)
		}

		resp, err := c.SearchItems(ctx, shopID, page, DefaultPageSize, accessToken)
		if err != nil {
			return nil, fmt.Errorf("search shop %s page %d: %w", shopID, page, err)
		}

		items := PageItems(resp.Body)
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < DefaultPageSize {
			break
		}
	}

	c.logger.Info().Str("shop_id", shopID).Int("items", len(all)).Msg("shop items collected")
	if all == nil {
		all = []any{}
	}
	return all, nil
}

// PageItems extracts body.data.data; anything of another shape is an empty
// page.
func PageItems(body map[string]any) []any {
	outer, ok := body["data"].(map[string]any)
	if !ok {
		return nil
	}
	items, _ := outer["data"].([]any)
	return items
}
