package coinbase

// Wire types for the Advanced Trade REST API. Numeric values arrive as
// strings and are parsed into decimals after validation.

type candlesResponse struct {
	Candles []wireCandle `json:"candles" validate:"dive"`
}

type wireCandle struct {
	Start  string `json:"start" validate:"required"`
	Low    string `json:"low" validate:"required,numeric"`
	High   string `json:"high" validate:"required,numeric"`
	Open   string `json:"open" validate:"required,numeric"`
	Close  string `json:"close" validate:"required,numeric"`
	Volume string `json:"volume" validate:"omitempty,numeric"`
}

type productResponse struct {
	ProductID string `json:"product_id" validate:"required"`
	Price     string `json:"price" validate:"required,numeric"`
}

type accountsResponse struct {
	Accounts []account `json:"accounts" validate:"dive"`
	HasNext  bool      `json:"has_next"`
	Cursor   string    `json:"cursor"`
}

type account struct {
	UUID             string `json:"uuid"`
	Currency         string `json:"currency" validate:"required"`
	AvailableBalance amount `json:"available_balance"`
}

type amount struct {
	Value    string `json:"value" validate:"omitempty,numeric"`
	Currency string `json:"currency"`
}

type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type orderConfiguration struct {
	MarketIOC marketIOC `json:"market_market_ioc"`
}

type marketIOC struct {
	BaseSize  string `json:"base_size,omitempty"`
	QuoteSize string `json:"quote_size,omitempty"`
}

type createOrderResponse struct {
	Success         bool            `json:"success"`
	FailureReason   string          `json:"failure_reason"`
	OrderID         string          `json:"order_id"`
	SuccessResponse successResponse `json:"success_response"`
	ErrorResponse   errorResponse   `json:"error_response"`
}

type successResponse struct {
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Side          string `json:"side"`
	ClientOrderID string `json:"client_order_id"`
}

type errorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	ErrorDetails string `json:"error_details"`
}
