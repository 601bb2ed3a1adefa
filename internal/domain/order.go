package domain

import "context"

// OrderRequest is an instruction to establish a mirrored position on the
// exchange.
type OrderRequest struct {
	MarketID string
	TokenID  string
	Side     TradeSide
	MaxPrice float64
	Size     float64
}

// OrderResult is the exchange's answer. A rejection (Filled == false) drives
// the pending position to CANCELLED.
type OrderResult struct {
	Filled    bool
	FillPrice float64
	Quantity  float64
	Reason    string // populated on rejection
}

// OrderPlacer submits orders to the exchange. The paper implementation fills
// immediately at the requested price; the live implementation talks to the
// CLOB.
type OrderPlacer interface {
	Place(ctx context.Context, req OrderRequest) (OrderResult, error)
}
