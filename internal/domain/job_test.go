package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessImageRequestDefaults(t *testing.T) {
	var body ProcessImageRequest
	require.NoError(t, json.Unmarshal([]byte(`{"image_url":" https://cdn.example.com/a.jpg "}`), &body))

	req := body.ImageRequest()
	assert.Equal(t, "https://cdn.example.com/a.jpg", req.SourceURL)
	assert.Equal(t, "product", req.VariantID)
	assert.Equal(t, 85, req.Quality)
	assert.NoError(t, req.Validate())
}

func TestImageRequestQualityBounds(t *testing.T) {
	tests := []struct {
		quality int
		valid   bool
	}{
		{0, false},
		{1, true},
		{85, true},
		{100, true},
		{101, false},
		{-5, false},
	}

	for _, tc := range tests {
		q := tc.quality
		req := ProcessImageRequest{ImageURL: "https://x/a.png", Quality: &q}.ImageRequest()
		err := req.Validate()
		if tc.valid {
			assert.NoError(t, err, "quality %d", tc.quality)
		} else {
			assert.Error(t, err, "quality %d", tc.quality)
		}
	}
}

func TestImageRequestRequiresURL(t *testing.T) {
	err := ProcessImageRequest{}.ImageRequest().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image_url")
}

func TestCreateJobRequestDecodesEmbeddedFields(t *testing.T) {
	var body CreateJobRequest
	require.NoError(t, json.Unmarshal([]byte(`{"image_url":"https://x/a.png","variant_id":"sku-9","quality":70,"webhook_url":"https://hooks/x"}`), &body))

	req := body.ImageRequest()
	assert.Equal(t, "sku-9", req.VariantID)
	assert.Equal(t, 70, req.Quality)
	assert.Equal(t, "https://hooks/x", body.WebhookURL)
}

func TestEnvelope(t *testing.T) {
	out, err := json.Marshal(Failure(errors.New("nope")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"nope"}`, string(out))

	out, err = json.Marshal(Success("success", map[string]int{"n": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"type":"success","data":{"n":1}}`, string(out))
}

func TestProductsRequestDefaults(t *testing.T) {
	req := ProductsRequest{ShopID: "s", AccessToken: "t"}.WithDefaults()
	assert.Equal(t, 1, req.PageNo)
	assert.Equal(t, 20, req.PageSize)
	assert.NoError(t, req.Validate())
	assert.Error(t, AllProductsRequest{ShopID: "s"}.Validate())
	assert.Error(t, ProductInfoRequest{AccessToken: "t"}.Validate())
}
