package domain

import "errors"

type ProductInfoRequest struct {
	ItemID      string `json:"item_id"`
	AccessToken string `json:"access_token"`
}

func (r ProductInfoRequest) Validate() error {
	if r.ItemID == "" {
		return errors.New("item_id is required")
	}
	if r.AccessToken == "" {
		return errors.New("access_token is required")
	}
	return nil
}

type ProductsRequest struct {
	PageNo      int    `json:"page_no"`
	PageSize    int    `json:"page_size"`
	ShopID      string `json:"shop_id"`
	AccessToken string `json:"access_token"`
}

// WithDefaults fills the first page of twenty when paging is omitted.
func (r ProductsRequest) WithDefaults() ProductsRequest {
	if r.PageNo <= 0 {
		r.PageNo = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = 20
	}
	return r
}

func (r ProductsRequest) Validate() error {
	if r.ShopID == "" {
		return errors.New("shop_id is required")
	}
	if r.AccessToken == "" {
		return errors.New("access_token is required")
	}
	return nil
}

type AllProductsRequest struct {
	ShopID      string `json:"shop_id"`
	AccessToken string `json:"access_token"`
}

func (r AllProductsRequest) Validate() error {
	return ProductsRequest{ShopID: r.ShopID, AccessToken: r.AccessToken}.Validate()
}
