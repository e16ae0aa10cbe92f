package tradestation

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

const (
	ActionBuyToOpen   = "BUYTOOPEN"
	ActionSellToOpen  = "SELLTOOPEN"
	ActionBuyToClose  = "BUYTOCLOSE"
	ActionSellToClose = "SELLTOCLOSE"
)

type OrderLeg struct {
	Symbol      string `json:"Symbol"`
	Quantity    int    `json:"Quantity"`
	TradeAction string `json:"TradeAction"`
}

type TimeInForce struct {
	Duration string `json:"Duration"`
}

type OrderRequest struct {
	AccountID   string      `json:"AccountID"`
	OrderType   string      `json:"OrderType"`
	LimitPrice  string      `json:"LimitPrice,omitempty"`
	TimeInForce TimeInForce `json:"TimeInForce"`
	Legs        []OrderLeg  `json:"Legs"`
	OSOs        []OSOGroup  `json:"OSOs,omitempty"`
}

// OSOGroup is an order-sends-order bracket attached to a parent order.
type OSOGroup struct {
	Type   string         `json:"Type"`
	Orders []OrderRequest `json:"Orders"`
}

type OrderResult struct {
	OrderID string `json:"OrderID"`
	Message string `json:"Message"`
}

type OrderError struct {
	OrderID string `json:"OrderID"`
	Err     string `json:"Error"`
	Message string `json:"Message"`
}

type OrderResponse struct {
	Orders []OrderResult `json:"Orders"`
	Errors []OrderError  `json:"Errors"`
}

// OrderStatusFilled is the brokerage status code for a fully filled order.
const OrderStatusFilled = "FLL"

type Order struct {
	OrderID           string `json:"OrderID"`
	Status            string `json:"Status"`
	StatusDescription string `json:"StatusDescription"`
	OrderType         string `json:"OrderType"`
	FilledPrice       string `json:"FilledPrice"`
	OpenedDateTime    string `json:"OpenedDateTime"`
}

type Position struct {
	PositionID   string `json:"PositionID"`
	Symbol       string `json:"Symbol"`
	Quantity     string `json:"Quantity"`
	AveragePrice string `json:"AveragePrice"`
	Last         string `json:"Last"`
	MarketValue  string `json:"MarketValue"`
	LongShort    string `json:"LongShort"`
}

type Account struct {
	AccountID   string `json:"AccountID"`
	Currency    string `json:"Currency"`
	Status      string `json:"Status"`
	AccountType string `json:"AccountType"`
}

// PlaceOrder submits an order payload as is.
func (c *Client) PlaceOrder(ctx context.Context, order *OrderRequest) (*OrderResponse, error) {
	var resp OrderResponse
	if err := c.do(ctx, "POST", "/v3/orderexecution/orders", nil, order, &resp); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if len(resp.Errors) > 0 {
		return &resp, fmt.Errorf("order rejected: %s: %s", resp.Errors[0].Err, resp.Errors[0].Message)
	}
	if c.logger != nil && len(resp.Orders) > 0 {
		c.logger.Info("order placed", zap.String("order_id", resp.Orders[0].OrderID))
	}
	return &resp, nil
}

// PlaceIronCondor opens the four legs at market with a day duration and
// attaches a good-til-cancelled take-profit limit order that closes all
// four legs at the strategy's take-profit price.
func (c *Client) PlaceIronCondor(ctx context.Context, accountID string, strategy *CondorStrategy, quantity int) (*OrderResponse, error) {
	if quantity <= 0 {
		quantity = 1
	}
	order := &OrderRequest{
		AccountID:   accountID,
		OrderType:   "Market",
		TimeInForce: TimeInForce{Duration: "DAY"},
		Legs:        condorLegs(strategy, quantity, false),
		OSOs: []OSOGroup{
			{
				Type: "Normal",
				Orders: []OrderRequest{
					{
						AccountID:   accountID,
						OrderType:   "Limit",
						LimitPrice:  strategy.TakeProfitPrice.String(),
						TimeInForce: TimeInForce{Duration: "GTC"},
						Legs:        condorLegs(strategy, quantity, true),
					},
				},
			},
		},
	}
	return c.PlaceOrder(ctx, order)
}

// CloseIronCondor flattens all four legs at market. Used by the timed
// exit when the take-profit bracket has not filled.
func (c *Client) CloseIronCondor(ctx context.Context, accountID string, strategy *CondorStrategy, quantity int) (*OrderResponse, error) {
	if quantity <= 0 {
		quantity = 1
	}
	order := &OrderRequest{
		AccountID:   accountID,
		OrderType:   "Market",
		TimeInForce: TimeInForce{Duration: "DAY"},
		Legs:        condorLegs(strategy, quantity, true),
	}
	return c.PlaceOrder(ctx, order)
}

// condorLegs returns the four legs in fixed order: put wing, short put,
// short call, call wing. Closing reverses every action.
func condorLegs(strategy *CondorStrategy, quantity int, closing bool) []OrderLeg {
	if closing {
		return []OrderLeg{
			{Symbol: strategy.Symbols.PutBuy, Quantity: quantity, TradeAction: ActionSellToClose},
			{Symbol: strategy.Symbols.PutSell, Quantity: quantity, TradeAction: ActionBuyToClose},
			{Symbol: strategy.Symbols.CallSell, Quantity: quantity, TradeAction: ActionBuyToClose},
			{Symbol: strategy.Symbols.CallBuy, Quantity: quantity, TradeAction: ActionSellToClose},
		}
	}
	return []OrderLeg{
		{Symbol: strategy.Symbols.PutBuy, Quantity: quantity, TradeAction: ActionBuyToOpen},
		{Symbol: strategy.Symbols.PutSell, Quantity: quantity, TradeAction: ActionSellToOpen},
		{Symbol: strategy.Symbols.CallSell, Quantity: quantity, TradeAction: ActionSellToOpen},
		{Symbol: strategy.Symbols.CallBuy, Quantity: quantity, TradeAction: ActionBuyToOpen},
	}
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, "DELETE", "/v3/orderexecution/orders/"+url.PathEscape(orderID), nil, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if c.logger != nil {
		c.logger.Info("order cancelled", zap.String("order_id", orderID))
	}
	return nil
}

func (c *Client) GetOrders(ctx context.Context, accountID string) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"Orders"`
	}
	if err := c.do(ctx, "GET", "/v3/brokerage/accounts/"+url.PathEscape(accountID)+"/orders", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return resp.Orders, nil
}

// GetOrder fetches a single order, used to reconcile the fill price of
// a market close order.
func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (*Order, error) {
	var resp struct {
		Orders []Order `json:"Orders"`
	}
	path := "/v3/brokerage/accounts/" + url.PathEscape(accountID) + "/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "GET", path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if len(resp.Orders) == 0 {
		return nil, nil
	}
	return &resp.Orders[0], nil
}

func (c *Client) GetPositions(ctx context.Context, accountID string) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"Positions"`
	}
	if err := c.do(ctx, "GET", "/v3/brokerage/accounts/"+url.PathEscape(accountID)+"/positions", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return resp.Positions, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var resp struct {
		Accounts []Account `json:"Accounts"`
	}
	if err := c.do(ctx, "GET", "/v3/brokerage/accounts/"+url.PathEscape(accountID), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(resp.Accounts) == 0 {
		return nil, nil
	}
	return &resp.Accounts[0], nil
}
