package handlers

import (
	"github.com/fazaproducts/storefront/internal/domain"
	"github.com/fazaproducts/storefront/internal/platform/money"
)

const defaultCurrencyLabel = "Rs."

type productPayload struct {
	ID                     int64    `json:"id"`
	Name                   string   `json:"name"`
	Category               string   `json:"category"`
	CategoryLabel          string   `json:"categoryLabel"`
	Description            string   `json:"description,omitempty"`
	Price                  int64    `json:"price"`
	PriceFormatted         string   `json:"priceFormatted"`
	OriginalPrice          int64    `json:"originalPrice,omitempty"`
	OriginalPriceFormatted string   `json:"originalPriceFormatted,omitempty"`
	Discount               int      `json:"discount,omitempty"`
	Image                  string   `json:"image"`
	Images                 []string `json:"images"`
	BestSeller             bool     `json:"bestSeller"`
	Offer                  bool     `json:"offer"`
	Rating                 float64  `json:"rating"`
	Highlights             []string `json:"highlights"`
	Schema                 string   `json:"schema"`
}

func buildProductPayload(label string, p domain.Product) productPayload {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	highlights := p.Highlights()
	if highlights == nil {
		highlights = []string{}
	}
	payload := productPayload{
		ID:             p.ID,
		Name:           p.Name,
		Category:       string(p.Category),
		CategoryLabel:  p.Category.Label(),
		Description:    p.Description,
		Price:          p.Price,
		PriceFormatted: money.Format(label, p.Price),
		Image:          p.PrimaryImage(),
		Images:         images,
		BestSeller:     p.BestSeller,
		Offer:          p.OnOffer(),
		Rating:         p.Rating,
		Highlights:     highlights,
		Schema:         p.SchemaVersion().String(),
	}
	if p.HasOriginalPrice() {
		payload.OriginalPrice = p.OriginalPrice
		payload.OriginalPriceFormatted = money.Format(label, p.OriginalPrice)
		payload.Discount = p.Discount()
	}
	return payload
}

func buildProductList(label string, products []domain.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, p := range products {
		out = append(out, buildProductPayload(label, p))
	}
	return out
}

type reviewPayload struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Rating      int    `json:"rating"`
	RatingLabel string `json:"ratingLabel"`
	Comment     string `json:"comment"`
	Date        string `json:"date"`
}

type aggregatePayload struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func buildReviewList(reviews []domain.Review) []reviewPayload {
	out := make([]reviewPayload, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewPayload{
			ID:          r.ID,
			Name:        r.Name,
			Rating:      r.Rating,
			RatingLabel: domain.RatingLabel(r.Rating),
			Comment:     r.Comment,
			Date:        r.Date,
		})
	}
	return out
}

type cartLinePayload struct {
	ProductID          int64  `json:"productId"`
	Name               string `json:"name"`
	Price              int64  `json:"price"`
	PriceFormatted     string `json:"priceFormatted"`
	Image              string `json:"image"`
	Quantity           int    `json:"quantity"`
	LineTotal          int64  `json:"lineTotal"`
	LineTotalFormatted string `json:"lineTotalFormatted"`
}

type cartSummaryPayload struct {
	Subtotal     int64                `json:"subtotal"`
	Shipping     int64                `json:"shipping"`
	Total        int64                `json:"total"`
	Items        int                  `json:"items"`
	FreeShipping bool                 `json:"freeShipping"`
	Formatted    cartSummaryFormatted `json:"formatted"`
}

type cartSummaryFormatted struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

type cartPayload struct {
	Items    []cartLinePayload  `json:"items"`
	Summary  cartSummaryPayload `json:"summary"`
	Empty    bool               `json:"empty"`
	Degraded bool               `json:"degraded"`
}

func buildCartSummaryPayload(label string, sum domain.CartSummary) cartSummaryPayload {
	return cartSummaryPayload{
		Subtotal:     sum.Subtotal,
		Shipping:     sum.Shipping,
		Total:        sum.Total,
		Items:        sum.Items,
		FreeShipping: sum.Shipping == 0,
		Formatted: cartSummaryFormatted{
			Subtotal: money.Format(label, sum.Subtotal),
			Shipping: money.Format(label, sum.Shipping),
			Total:    money.Format(label, sum.Total),
		},
	}
}

func buildCartPayload(label string, lines []domain.CartLine, sum domain.CartSummary, degraded bool) cartPayload {
	items := make([]cartLinePayload, 0, len(lines))
	for _, l := range lines {
		items = append(items, cartLinePayload{
			ProductID:          l.ProductID,
			Name:               l.Name,
			Price:              l.Price,
			PriceFormatted:     money.Format(label, l.Price),
			Image:              l.Image,
			Quantity:           l.Quantity,
			LineTotal:          l.LineTotal(),
			LineTotalFormatted: money.Format(label, l.LineTotal()),
		})
	}
	return cartPayload{
		Items:    items,
		Summary:  buildCartSummaryPayload(label, sum),
		Empty:    len(items) == 0,
		Degraded: degraded,
	}
}
