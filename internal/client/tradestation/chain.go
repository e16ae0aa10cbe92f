package tradestation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInsufficientChain means the options chain came back empty or is
// missing the strikes a strategy needs.
var ErrInsufficientChain = errors.New("tradestation: insufficient options chain data")

const (
	SideCall = "Call"
	SidePut  = "Put"
)

// ChainEntry is a single option quote with all prices already parsed
// to decimals. Mid is (Bid+Ask)/2.
type ChainEntry struct {
	Strike decimal.Decimal
	Side   string
	Delta  decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Mid    decimal.Decimal
}

// chainRecord is one line of the NDJSON chain stream as the API sends it.
type chainRecord struct {
	Strikes []string `json:"Strikes"`
	Side    string   `json:"Side"`
	Delta   string   `json:"Delta"`
	Bid     string   `json:"Bid"`
	Ask     string   `json:"Ask"`
}

// GetOptionsChain reads the streamed chain for one expiration, keeping at
// most strikeProximity*4 records (puts and calls around the money).
// Malformed stream lines are skipped, not fatal.
func (c *Client) GetOptionsChain(ctx context.Context, symbol string, expiration time.Time, strikeProximity int) ([]ChainEntry, error) {
	if strikeProximity <= 0 {
		strikeProximity = 20
	}

	query := url.Values{}
	query.Set("expiration", fmt.Sprintf("%02d-%02d-%d", expiration.Month(), expiration.Day(), expiration.Year()))
	query.Set("strikeProximity", strconv.Itoa(strikeProximity))

	body, err := c.stream(ctx, "/v3/marketdata/stream/options/chains/"+symbol, query)
	if err != nil {
		return nil, fmt.Errorf("get options chain: %w", err)
	}
	defer body.Close()

	limit := strikeProximity * 4
	entries := make([]ChainEntry, 0, limit)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec chainRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping malformed chain record", zap.Error(err))
			}
			continue
		}
		entry, err := rec.toEntry()
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping unparsable chain record", zap.Error(err))
			}
			continue
		}
		entries = append(entries, entry)
		if len(entries) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read options chain stream: %w", err)
	}
	return entries, nil
}

func (r chainRecord) toEntry() (ChainEntry, error) {
	if len(r.Strikes) == 0 {
		return ChainEntry{}, fmt.Errorf("record has no strikes")
	}
	if r.Side != SideCall && r.Side != SidePut {
		return ChainEntry{}, fmt.Errorf("unknown side %q", r.Side)
	}
	strike, err := decimal.NewFromString(r.Strikes[0])
	if err != nil {
		return ChainEntry{}, fmt.Errorf("parse strike %q: %w", r.Strikes[0], err)
	}
	delta, err := decimal.NewFromString(r.Delta)
	if err != nil {
		return ChainEntry{}, fmt.Errorf("parse delta %q: %w", r.Delta, err)
	}
	bid, err := decimal.NewFromString(r.Bid)
	if err != nil {
		return ChainEntry{}, fmt.Errorf("parse bid %q: %w", r.Bid, err)
	}
	ask, err := decimal.NewFromString(r.Ask)
	if err != nil {
		return ChainEntry{}, fmt.Errorf("parse ask %q: %w", r.Ask, err)
	}
	return ChainEntry{
		Strike: strike,
		Side:   r.Side,
		Delta:  delta,
		Bid:    bid,
		Ask:    ask,
		Mid:    bid.Add(ask).Div(decimal.NewFromInt(2)),
	}, nil
}
