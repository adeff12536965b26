// Package tracker is the client for the item-tracking service REST API. It
// exposes the two capabilities the reconciliation run needs: a contains-style
// item search and a JSON-Patch style item update.
package tracker

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/itemtype/internal/transport"
	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
)

// Record is an item returned by a search.
type Record struct {
	ID          int64          `json:"id"`
	DocumentKey string         `json:"documentKey,omitempty"`
	GlobalID    string         `json:"globalId,omitempty"`
	ItemType    int64          `json:"itemType,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// IDString returns the record id in the string form used for addressing.
func (r Record) IDString() string {
	return strconv.FormatInt(r.ID, 10)
}

// Operation is a single JSON-Patch style operation.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// SearchResult is one page of search results plus the total match count.
type SearchResult struct {
	Records []Record
	Total   int
}

// pageInfo mirrors meta.pageInfo in list responses.
type pageInfo struct {
	StartIndex   int `json:"startIndex"`
	ResultCount  int `json:"resultCount"`
	TotalResults int `json:"totalResults"`
}

// searchResponse is the abstract items list envelope.
type searchResponse struct {
	Meta struct {
		Status   string    `json:"status"`
		PageInfo *pageInfo `json:"pageInfo"`
	} `json:"meta"`
	Data []Record `json:"data"`
}

// Client talks to a single item-tracking service instance.
type Client struct {
	transport *transport.Client
	baseURL   string
	pageSize  int
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets how many records a search requests.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, tc *transport.Client, opts ...Option) *Client {
	c := &Client{
		transport: tc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageSize:  constants.SearchPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns items matching a contains expression such as
// documentKey:"REQ-12". Total is the service-reported match count, which can
// exceed len(Records).
func (c *Client) Search(ctx context.Context, contains string) (*SearchResult, error) {
	query := url.Values{}
	query.Set("contains", contains)
	query.Set("startAt", "0")
	query.Set("maxResults", strconv.Itoa(c.pageSize))
	endpoint := c.baseURL + constants.AbstractItemsPath + "?" + query.Encode()

	resp, err := c.transport.Get(ctx, endpoint)
	if err != nil {
		return nil, errors.WrapResource("search", "items", contains, err)
	}

	var out searchResponse
	if err := transport.DecodeResponse(resp, &out); err != nil {
		return nil, err
	}

	total := len(out.Data)
	if out.Meta.PageInfo != nil && out.Meta.PageInfo.TotalResults > total {
		total = out.Meta.PageInfo.TotalResults
	}
	return &SearchResult{Records: out.Data, Total: total}, nil
}

// PatchItem applies ops to the item with the given id.
func (c *Client) PatchItem(ctx context.Context, id string, ops []Operation) error {
	endpoint := c.baseURL + constants.ItemsPath + "/" + url.PathEscape(id)

	resp, err := c.transport.Patch(ctx, endpoint, ops)
	if err != nil {
		return errors.WrapResource("patch", "item", id, err)
	}
	return transport.DecodeResponse(resp, nil)
}

// ContainsExpression builds the field:"value" search expression, escaping
// backslashes and double quotes inside the value.
func ContainsExpression(field, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return field + `:"` + escaped + `"`
}
