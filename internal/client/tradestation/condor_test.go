package tradestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var chainExpiration = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func chainLine(strike, side, delta, bid, ask string) string {
	line, _ := json.Marshal(map[string]any{
		"Strikes": []string{strike},
		"Side":    side,
		"Delta":   delta,
		"Bid":     bid,
		"Ask":     ask,
	})
	return string(line)
}

func testChainBody() string {
	lines := []string{
		chainLine("430", "Put", "0.18", "0.20", "0.25"),
		chainLine("440", "Put", "0.31", "1.50", "1.60"),
		chainLine("450", "Put", "0.45", "2.80", "2.90"),
		chainLine("460", "Call", "-0.29", "1.517", "1.60"),
		chainLine("470", "Call", "-0.10", "0.15", "0.20"),
		chainLine("480", "Call", "-0.05", "0.05", "0.10"),
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestGetOptionsChainParsesAndCaps(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("expiration"); got != "06-14-2024" {
			t.Errorf("expiration = %q, want 06-14-2024", got)
		}
		if got := r.URL.Query().Get("strikeProximity"); got != "1" {
			t.Errorf("strikeProximity = %q, want 1", got)
		}
		io.WriteString(w, "not json\n")
		io.WriteString(w, testChainBody())
	})
	client := newTestClient(server)

	// proximity 1 caps the chain at 4 records; the bad line is skipped.
	chain, err := client.GetOptionsChain(context.Background(), "SPY", chainExpiration, 1)
	if err != nil {
		t.Fatalf("GetOptionsChain: %v", err)
	}
	if len(chain) != 4 {
		t.Fatalf("len(chain) = %d, want 4", len(chain))
	}
	first := chain[0]
	if !first.Strike.Equal(decimal.NewFromInt(430)) {
		t.Fatalf("strike = %s, want 430", first.Strike)
	}
	if first.Side != SidePut {
		t.Fatalf("side = %q, want Put", first.Side)
	}
	wantMid := decimal.RequireFromString("0.225")
	if !first.Mid.Equal(wantMid) {
		t.Fatalf("mid = %s, want %s", first.Mid, wantMid)
	}
}

func TestBuildIronCondor(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testChainBody())
	})
	client := newTestClient(server)

	strategy, err := client.BuildIronCondor(context.Background(), CondorParams{
		Symbol:             "SPY",
		Expiration:         chainExpiration,
		DeltaTarget:        decimal.RequireFromString("0.3"),
		WingWidth:          decimal.NewFromInt(10),
		TakeProfitFraction: decimal.RequireFromString("0.25"),
		StrikeProximity:    20,
	})
	if err != nil {
		t.Fatalf("BuildIronCondor: %v", err)
	}

	if !strategy.PutStrike.Equal(decimal.NewFromInt(440)) {
		t.Fatalf("put strike = %s, want 440 (delta 0.31 closest to 0.3)", strategy.PutStrike)
	}
	if !strategy.CallStrike.Equal(decimal.NewFromInt(460)) {
		t.Fatalf("call strike = %s, want 460 (delta -0.29 closest to -0.3)", strategy.CallStrike)
	}
	if !strategy.PutWingStrike.Equal(decimal.NewFromInt(430)) {
		t.Fatalf("put wing = %s, want 430", strategy.PutWingStrike)
	}
	if !strategy.CallWingStrike.Equal(decimal.NewFromInt(470)) {
		t.Fatalf("call wing = %s, want 470", strategy.CallWingStrike)
	}

	// 1.50 + 1.517 - 0.25 - 0.20 = 2.567, floored to the cent.
	if !strategy.NetCredit.Equal(decimal.RequireFromString("2.56")) {
		t.Fatalf("net credit = %s, want 2.56", strategy.NetCredit)
	}
	if !strategy.MaxLoss.Equal(decimal.RequireFromString("7.44")) {
		t.Fatalf("max loss = %s, want 7.44", strategy.MaxLoss)
	}
	if !strategy.TakeProfitPrice.Equal(decimal.RequireFromString("0.64")) {
		t.Fatalf("take profit = %s, want 0.64", strategy.TakeProfitPrice)
	}

	if strategy.Symbols.PutSell != "SPY 240614P440" {
		t.Fatalf("put sell symbol = %q", strategy.Symbols.PutSell)
	}
	if strategy.Symbols.PutBuy != "SPY 240614P430" {
		t.Fatalf("put buy symbol = %q", strategy.Symbols.PutBuy)
	}
	if strategy.Symbols.CallSell != "SPY 240614C460" {
		t.Fatalf("call sell symbol = %q", strategy.Symbols.CallSell)
	}
	if strategy.Symbols.CallBuy != "SPY 240614C470" {
		t.Fatalf("call buy symbol = %q", strategy.Symbols.CallBuy)
	}
}

func TestBuildIronCondorEmptyChain(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	client := newTestClient(server)

	_, err := client.BuildIronCondor(context.Background(), CondorParams{
		Symbol:             "SPY",
		Expiration:         chainExpiration,
		DeltaTarget:        decimal.RequireFromString("0.3"),
		WingWidth:          decimal.NewFromInt(10),
		TakeProfitFraction: decimal.RequireFromString("0.25"),
	})
	if err == nil {
		t.Fatalf("expected error for empty chain")
	}
	if !strings.Contains(err.Error(), "insufficient options chain") {
		t.Fatalf("error = %v, want insufficient chain", err)
	}
}

func TestBuildIronCondorMissingWing(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			chainLine("440", "Put", "0.31", "1.50", "1.60"),
			chainLine("460", "Call", "-0.29", "1.50", "1.60"),
			chainLine("470", "Call", "-0.10", "0.15", "0.20"),
		}
		io.WriteString(w, strings.Join(lines, "\n"))
	})
	client := newTestClient(server)

	_, err := client.BuildIronCondor(context.Background(), CondorParams{
		Symbol:             "SPY",
		Expiration:         chainExpiration,
		DeltaTarget:        decimal.RequireFromString("0.3"),
		WingWidth:          decimal.NewFromInt(10),
		TakeProfitFraction: decimal.RequireFromString("0.25"),
	})
	if err == nil {
		t.Fatalf("expected error when the put wing strike is absent")
	}
}

func TestFloorCents(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2.567", "2.56"},
		{"2.561", "2.56"},
		{"2.56", "2.56"},
		{"0.6425", "0.64"},
		{"3", "3"},
	}
	for _, tc := range cases {
		got := floorCents(decimal.RequireFromString(tc.in))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("floorCents(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestOptionSymbolFractionalStrike(t *testing.T) {
	got := optionSymbol("SPY", chainExpiration, "C", decimal.RequireFromString("447.5"))
	if got != "SPY 240614C447.5" {
		t.Fatalf("symbol = %q, want SPY 240614C447.5", got)
	}
	got = optionSymbol("SPY", chainExpiration, "P", decimal.RequireFromString("450.0"))
	if got != "SPY 240614P450" {
		t.Fatalf("symbol = %q, want SPY 240614P450", got)
	}
}

func TestPlaceIronCondorPayload(t *testing.T) {
	var captured OrderRequest
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/orderexecution/orders" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode order payload: %v", err)
		}
		fmt.Fprint(w, `{"Orders":[{"OrderID":"ORD-1","Message":"Sent"}]}`)
	})
	client := newTestClient(server)

	strategy := &CondorStrategy{
		TakeProfitPrice: decimal.RequireFromString("0.64"),
		Symbols: OptionSymbols{
			PutSell:  "SPY 240614P440",
			PutBuy:   "SPY 240614P430",
			CallSell: "SPY 240614C460",
			CallBuy:  "SPY 240614C470",
		},
	}
	resp, err := client.PlaceIronCondor(context.Background(), "SIM123", strategy, 2)
	if err != nil {
		t.Fatalf("PlaceIronCondor: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].OrderID != "ORD-1" {
		t.Fatalf("response = %+v", resp)
	}

	if captured.OrderType != "Market" || captured.TimeInForce.Duration != "DAY" {
		t.Fatalf("parent order type/duration = %s/%s", captured.OrderType, captured.TimeInForce.Duration)
	}
	wantActions := []string{ActionBuyToOpen, ActionSellToOpen, ActionSellToOpen, ActionBuyToOpen}
	if len(captured.Legs) != 4 {
		t.Fatalf("legs = %d, want 4", len(captured.Legs))
	}
	for i, leg := range captured.Legs {
		if leg.TradeAction != wantActions[i] {
			t.Fatalf("leg %d action = %s, want %s", i, leg.TradeAction, wantActions[i])
		}
		if leg.Quantity != 2 {
			t.Fatalf("leg %d quantity = %d, want 2", i, leg.Quantity)
		}
	}
	if captured.Legs[0].Symbol != "SPY 240614P430" {
		t.Fatalf("first leg = %q, want the put wing", captured.Legs[0].Symbol)
	}

	if len(captured.OSOs) != 1 || len(captured.OSOs[0].Orders) != 1 {
		t.Fatalf("OSOs = %+v, want one bracket with one order", captured.OSOs)
	}
	bracket := captured.OSOs[0].Orders[0]
	if bracket.OrderType != "Limit" || bracket.LimitPrice != "0.64" {
		t.Fatalf("bracket = %s @ %s, want Limit @ 0.64", bracket.OrderType, bracket.LimitPrice)
	}
	if bracket.TimeInForce.Duration != "GTC" {
		t.Fatalf("bracket duration = %s, want GTC", bracket.TimeInForce.Duration)
	}
	wantClose := []string{ActionSellToClose, ActionBuyToClose, ActionBuyToClose, ActionSellToClose}
	for i, leg := range bracket.Legs {
		if leg.TradeAction != wantClose[i] {
			t.Fatalf("bracket leg %d action = %s, want %s", i, leg.TradeAction, wantClose[i])
		}
	}
}

func TestCloseIronCondorPayload(t *testing.T) {
	var captured OrderRequest
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"Orders":[{"OrderID":"ORD-2","Message":"Sent"}]}`)
	})
	client := newTestClient(server)

	strategy := &CondorStrategy{
		Symbols: OptionSymbols{
			PutSell:  "SPY 240614P440",
			PutBuy:   "SPY 240614P430",
			CallSell: "SPY 240614C460",
			CallBuy:  "SPY 240614C470",
		},
	}
	if _, err := client.CloseIronCondor(context.Background(), "SIM123", strategy, 1); err != nil {
		t.Fatalf("CloseIronCondor: %v", err)
	}
	if len(captured.OSOs) != 0 {
		t.Fatalf("closing order must not carry a bracket")
	}
	wantActions := []string{ActionSellToClose, ActionBuyToClose, ActionBuyToClose, ActionSellToClose}
	for i, leg := range captured.Legs {
		if leg.TradeAction != wantActions[i] {
			t.Fatalf("leg %d action = %s, want %s", i, leg.TradeAction, wantActions[i])
		}
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Errors":[{"OrderID":"","Error":"INVALID_LEG","Message":"unknown symbol"}]}`)
	})
	client := newTestClient(server)

	_, err := client.PlaceOrder(context.Background(), &OrderRequest{AccountID: "SIM123"})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
	if !strings.Contains(err.Error(), "INVALID_LEG") {
		t.Fatalf("error = %v, want the broker error code", err)
	}
}
