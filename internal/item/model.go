package item

import "time"

type Item struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       float64     `json:"price"`
	IsSold      bool        `json:"is_sold"`
	ViewCount   int64       `json:"view_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Images      []ItemImage `json:"images"`
}

type ItemImage struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Filename  string `json:"filename"`
	IsPrimary bool   `json:"is_primary"`
}

type ItemInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	IsSold      bool    `json:"is_sold"`
}

// Sort orders accepted by the public listing.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortViews     = "views"
)

type ListQuery struct {
	Search string
	Sort   string
}
