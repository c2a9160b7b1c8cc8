package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{URL: srv.URL + "/rest", AppKey: "500123", AppSecret: "s3cr3t"}, zerolog.Nop())
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return c
}

func TestSignIsSortedUpperHex(t *testing.T) {
	params := map[string]string{
		"b":    "2",
		"a":    "1",
		"sign": "ignored",
	}
	got := Sign("secret", "/product/get", params)

	want := Sign("secret", "/product/get", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, want, got)
	assert.Len(t, got, 64)
	assert.Regexp(t, "^[0-9A-F]+$", got)
	assert.NotEqual(t, got, Sign("other", "/product/get", params))
	assert.NotEqual(t, got, Sign("secret", "/product/list", params))
}

func TestExecutePostsSignedForm(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/product/get", r.URL.Path)
		assert.NoError(t, r.ParseForm())

		assert.Equal(t, "500123", r.PostForm.Get("app_key"))
		assert.Equal(t, "1700000000000", r.PostForm.Get("timestamp"))
		assert.Equal(t, "sha256", r.PostForm.Get("sign_method"))
		assert.Equal(t, DefaultPartnerID, r.PostForm.Get("partner_id"))
		assert.Equal(t, "tok", r.PostForm.Get("access_token"))
		assert.Equal(t, "42", r.PostForm.Get("item_id"))

		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		assert.Equal(t, Sign("s3cr3t", "/product/get", params), r.PostForm.Get("sign"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"ISP","code":"0","message":"ok","request_id":"req-1","data":{"item_id":42}}`))
	})

	resp, err := c.ProductInfo(context.Background(), "42", "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "ISP", resp.Type)
	assert.Equal(t, "0", resp.Code)
	assert.Equal(t, "ok", resp.Message)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, map[string]any{"item_id": float64(42)}, resp.Body["data"])
}

func TestExecuteGetUsesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "v", r.URL.Query().Get("k"))
		assert.Empty(t, r.URL.Query().Get("access_token"))
		assert.NotEmpty(t, r.URL.Query().Get("sign"))
		_, _ = w.Write([]byte(`{"code":0}`))
	})

	req := NewRequest("/system/ping").AddParam("k", "v")
	req.Method = http.MethodGet
	resp, err := c.Execute(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, "nil", resp.Type)
	assert.Equal(t, "0", resp.Code)
}

func TestExecuteNonJSONBodyIsWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("maintenance"))
	})

	resp, err := c.Execute(context.Background(), NewRequest("/product/get"), "tok")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"raw": "maintenance"}, resp.Body)
	assert.Equal(t, "nil", resp.Type)
}

func TestExecuteGatewayErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.Execute(context.Background(), NewRequest("/product/get"), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestExecuteRequiresConfiguration(t *testing.T) {
	c := NewClient(Config{URL: "https://api.example.com/rest"}, zerolog.Nop())
	assert.False(t, c.Configured())

	_, err := c.Execute(context.Background(), NewRequest("/product/get"), "tok")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSearchAllStopsOnShortPage(t *testing.T) {
	var pages []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "shop-9", r.PostForm.Get("shop_id"))
		assert.Equal(t, "20", r.PostForm.Get("page_size"))
		page, _ := strconv.Atoi(r.PostForm.Get("page_no"))
		pages = append(pages, page)

		n := DefaultPageSize
		if page == 3 {
			n = 5
		}
		writeSearchPage(t, w, page, n)
	})

	items, err := c.SearchAll(context.Background(), "shop-9", "tok")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
	require.Len(t, items, 45)
	assert.Equal(t, "p1-0", items[0].(map[string]any)["item_id"])
	assert.Equal(t, "p3-4", items[44].(map[string]any)["item_id"])
}

func TestSearchAllStopsOnEmptyPage(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.NoError(t, r.ParseForm())
		page, _ := strconv.Atoi(r.PostForm.Get("page_no"))
		n := DefaultPageSize
		if page == 2 {
			n = 0
		}
		writeSearchPage(t, w, page, n)
	})

	items, err := c.SearchAll(context.Background(), "shop-9", "tok")
	require.NoError(t, err)
	assert.Len(t, items, 20)
	assert.Equal(t, 2, calls)
}

func TestSearchAllUnexpectedShapeIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"IllegalAccessToken","type":"ISV"}`))
	})

	items, err := c.SearchAll(context.Background(), "shop-9", "tok")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestSearchAllPropagatesErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.SearchAll(context.Background(), "shop-9", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1")
}

func writeSearchPage(t *testing.T, w http.ResponseWriter, page, n int) {
	t.Helper()
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"item_id": fmt.Sprintf("p%d-%d", page, i)}
	}
	body := map[string]any{
		"type": "success",
		"code": "0",
		"data": map[string]any{"data": items, "page_no": page},
	}
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}
