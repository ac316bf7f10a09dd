package kiteconnect

import "time"

// Order/transaction constants used by the trading engine.
const (
	TransactionTypeBuy  = "BUY"
	TransactionTypeSell = "SELL"

	VarietyRegular = "regular"

	ProductMIS = "MIS"
	ProductCNC = "CNC"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	ValidityDay = "DAY"

	ExchangeNSE = "NSE"
)

// Profile is the broker account identity.
type Profile struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Broker    string `json:"broker"`
	UserType  string `json:"user_type"`
	AvatarURL string `json:"avatar_url"`
}

// Margins is the funds summary for the equity segment.
type Margins struct {
	Equity struct {
		Enabled   bool    `json:"enabled"`
		Net       float64 `json:"net"`
		Available struct {
			Cash          float64 `json:"cash"`
			Collateral    float64 `json:"collateral"`
			IntradayPayin float64 `json:"intraday_payin"`
			LiveBalance   float64 `json:"live_balance"`
		} `json:"available"`
	} `json:"equity"`
}

// AvailableCash returns the deployable equity cash.
func (m Margins) AvailableCash() float64 { return m.Equity.Available.Cash }

// Order is one row of the order book.
type Order struct {
	OrderID         string  `json:"order_id"`
	Status          string  `json:"status"`
	StatusMessage   string  `json:"status_message"`
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	InstrumentToken uint32  `json:"instrument_token"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Variety         string  `json:"variety"`
	Quantity        int     `json:"quantity"`
	FilledQuantity  int     `json:"filled_quantity"`
	PendingQuantity int     `json:"pending_quantity"`
	Price           float64 `json:"price"`
	AveragePrice    float64 `json:"average_price"`
	Tag             string  `json:"tag"`
	OrderTimestamp  string  `json:"order_timestamp"`
}

// Position is one net intraday position. Quantity is signed:
// negative for short, positive for long.
type Position struct {
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	InstrumentToken uint32  `json:"instrument_token"`
	Product         string  `json:"product"`
	Quantity        int     `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	LastPrice       float64 `json:"last_price"`
	PnL             float64 `json:"pnl"`
	Realised        float64 `json:"realised"`
	Unrealised      float64 `json:"unrealised"`
}

// Positions is the day/net position book.
type Positions struct {
	Net []Position `json:"net"`
	Day []Position `json:"day"`
}

// Holding is one demat holding row.
type Holding struct {
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	InstrumentToken uint32  `json:"instrument_token"`
	ISIN            string  `json:"isin"`
	Quantity        int     `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	LastPrice       float64 `json:"last_price"`
	PnL             float64 `json:"pnl"`
	DayChange       float64 `json:"day_change"`
	DayChangePct    float64 `json:"day_change_percentage"`
}

// OrderParams are the fields of a regular order placement.
type OrderParams struct {
	Variety         string
	Exchange        string
	TradingSymbol   string
	TransactionType string
	Quantity        int
	Product         string
	OrderType       string
	Validity        string
	Price           float64
	Tag             string
}

// Tick is one parsed packet from the market feed. Which fields are
// populated depends on Mode: ltp carries only LastPrice; quote adds
// OHLC and volume; full adds depth and the exchange timestamp.
type Tick struct {
	Mode      string
	Token     uint32
	LastPrice float64

	LastQuantity int64
	AveragePrice float64
	Volume       int64
	BuyQuantity  int64
	SellQuantity int64

	Open  float64
	High  float64
	Low   float64
	Close float64

	Timestamp time.Time
	Depth     *TickDepth
}

// TickDepth is the five-level order book from a full-mode packet.
type TickDepth struct {
	Buy  [5]DepthLevel
	Sell [5]DepthLevel
}

// DepthLevel is one price level of the feed order book.
type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int64
}

// Subscription modes for the ticker.
const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)
