// Package binance implements broker.Connector on Binance USDT-margined
// futures. It is the secondary backend: the exchange has no position
// tickets or order magics, so tickets are synthesized per symbol and the
// strategy magic travels in the entry order's client order id, recovered
// from order history after a restart.
package binance

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bastion/internal/config"
	"bastion/internal/gateway/broker"

	"github.com/adshao/go-binance/v2/futures"
)

type Connector struct {
	client *futures.Client

	// Calls into one session are serialized; the SDK is not documented as
	// reentrant and order placement must not interleave with protective
	// order replacement.
	sessionMu sync.Mutex

	infoMu    sync.Mutex
	symbols   map[string]symbolInfo
	infoAsOf  time.Time
	infoStale time.Duration

	// magics remembers the entry magic per symbol; misses fall back to the
	// order history lookup in magicFor.
	magicMu sync.Mutex
	magics  map[string]int
}

type symbolInfo struct {
	pricePrecision int
	tickSize       float64
	minQty         float64
	maxQty         float64
	stepQty        float64
}

func New(cfg config.BinanceConfig) (*Connector, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("binance backend requires api_key and api_secret")
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Connector{
		client:    client,
		symbols:   make(map[string]symbolInfo),
		infoStale: time.Hour,
		magics:    make(map[string]int),
	}, nil
}

func (c *Connector) Name() string { return "binance" }

func (c *Connector) Connect(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return classify("connect", err)
	}
	return nil
}

func (c *Connector) AccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return broker.AccountSnapshot{}, classify("account_snapshot", err)
	}
	return broker.AccountSnapshot{
		Balance:    parseFloat(acct.TotalWalletBalance),
		Equity:     parseFloat(acct.TotalMarginBalance),
		Margin:     parseFloat(acct.TotalPositionInitialMargin),
		MarginFree: parseFloat(acct.AvailableBalance),
		Currency:   "USDT",
		UpdatedAt:  time.Now(),
	}, nil
}

func (c *Connector) OpenPositions(ctx context.Context, instrument string) ([]broker.Position, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	risks, err := c.client.NewGetPositionRiskV3Service().Do(ctx)
	if err != nil {
		return nil, classify("open_positions", err)
	}
	var positions []broker.Position
	for _, r := range risks {
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		if instrument != "" && !strings.EqualFold(r.Symbol, instrument) {
			continue
		}
		direction := broker.DirectionLong
		volume := amt
		if amt < 0 {
			direction = broker.DirectionShort
			volume = -amt
		}
		positions = append(positions, broker.Position{
			Ticket:       syntheticTicket(r.Symbol),
			Instrument:   strings.ToUpper(r.Symbol),
			Direction:    direction,
			Volume:       volume,
			EntryPrice:   parseFloat(r.EntryPrice),
			CurrentPrice: parseFloat(r.MarkPrice),
			Profit:       parseFloat(r.UnRealizedProfit),
			OpenedAt:     time.UnixMilli(r.UpdateTime).UTC(),
			Magic:        c.magicFor(ctx, r.Symbol),
		})
	}
	return positions, nil
}

func (c *Connector) SymbolSnapshot(ctx context.Context, instrument string) (broker.SymbolSnapshot, error) {
	info, err := c.symbolInfo(ctx, instrument)
	if err != nil {
		return broker.SymbolSnapshot{}, err
	}
	c.sessionMu.Lock()
	tickers, err := c.client.NewListBookTickersService().Symbol(strings.ToUpper(instrument)).Do(ctx)
	c.sessionMu.Unlock()
	if err != nil {
		return broker.SymbolSnapshot{}, classify("symbol_snapshot", err)
	}
	if len(tickers) == 0 {
		return broker.SymbolSnapshot{}, broker.NewError(broker.KindTransient, "symbol_snapshot", "no book ticker for "+instrument, nil)
	}
	t := tickers[0]
	return broker.SymbolSnapshot{
		Instrument: strings.ToUpper(instrument),
		Bid:        parseFloat(t.BidPrice),
		Ask:        parseFloat(t.AskPrice),
		Point:      info.tickSize,
		Digits:     info.pricePrecision,
		VolumeMin:  info.minQty,
		VolumeMax:  info.maxQty,
		VolumeStep: info.stepQty,
		// One point of one contract unit is worth one tick in quote
		// currency on USDT-margined futures.
		TickValue: info.tickSize,
	}, nil
}

func (c *Connector) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	symbol := strings.ToUpper(req.Instrument)
	side := futures.SideTypeBuy
	if req.Direction == broker.DirectionShort {
		side = futures.SideTypeSell
	}
	order, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(req.Volume)).
		NewClientOrderID(clientOrderID(req.Magic)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return broker.OrderResult{}, classify("place_order", err)
	}
	c.rememberMagic(symbol, req.Magic)
	if err := c.replaceProtectiveOrders(ctx, symbol, req.Direction, req.StopLoss, req.TakeProfit); err != nil {
		// The entry stands; the caller sees the protective failure and the
		// monitor retries the stop next cycle.
		return broker.OrderResult{Ticket: order.OrderID, Price: parseFloat(order.AvgPrice), Volume: parseFloat(order.ExecutedQuantity)}, err
	}
	return broker.OrderResult{
		Ticket: order.OrderID,
		Price:  parseFloat(order.AvgPrice),
		Volume: parseFloat(order.ExecutedQuantity),
	}, nil
}

func (c *Connector) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	symbol, direction, err := c.positionByTicket(ctx, ticket)
	if err != nil {
		return err
	}
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.replaceProtectiveOrders(ctx, symbol, direction, stopLoss, takeProfit)
}

func (c *Connector) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	symbol, direction, err := c.positionByTicket(ctx, ticket)
	if err != nil {
		return err
	}
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	side := futures.SideTypeSell
	if direction == broker.DirectionShort {
		side = futures.SideTypeBuy
	}
	svc := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		ReduceOnly(true)
	if volume > 0 {
		svc = svc.Quantity(formatQty(volume))
	} else {
		risks, err := c.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
		if err != nil {
			return classify("close_position", err)
		}
		full := 0.0
		for _, r := range risks {
			if amt := parseFloat(r.PositionAmt); amt != 0 {
				if amt < 0 {
					amt = -amt
				}
				full = amt
			}
		}
		if full <= 0 {
			return broker.NewError(broker.KindNotFound, "close_position", "position already flat", nil)
		}
		svc = svc.Quantity(formatQty(full))
	}
	if _, err := svc.Do(ctx); err != nil {
		return classify("close_position", err)
	}
	return nil
}

func (c *Connector) HistoricalDeals(ctx context.Context, from, to time.Time, position int64) ([]broker.Deal, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	incomes, err := c.client.NewGetIncomeHistoryService().
		IncomeType("REALIZED_PNL").
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, classify("historical_deals", err)
	}
	var deals []broker.Deal
	for _, inc := range incomes {
		ticket := syntheticTicket(inc.Symbol)
		if position > 0 && ticket != position {
			continue
		}
		deals = append(deals, broker.Deal{
			Ticket:     inc.TranID,
			Position:   ticket,
			Instrument: strings.ToUpper(inc.Symbol),
			Profit:     parseFloat(inc.Income),
			Time:       time.UnixMilli(inc.Time).UTC(),
		})
	}
	return deals, nil
}

// replaceProtectiveOrders cancels the symbol's working protective orders and
// re-arms stop / take-profit as close-position triggers. Callers hold the
// session mutex.
func (c *Connector) replaceProtectiveOrders(ctx context.Context, symbol string, direction broker.Direction, stopLoss, takeProfit float64) error {
	if stopLoss <= 0 && takeProfit <= 0 {
		return nil
	}
	if err := c.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return classify("modify_position", err)
	}
	closeSide := futures.SideTypeSell
	if direction == broker.DirectionShort {
		closeSide = futures.SideTypeBuy
	}
	if stopLoss > 0 {
		_, err := c.client.NewCreateOrderService().
			Symbol(symbol).
			Side(closeSide).
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatPrice(stopLoss)).
			ClosePosition(true).
			Do(ctx)
		if err != nil {
			return classify("modify_position", err)
		}
	}
	if takeProfit > 0 {
		_, err := c.client.NewCreateOrderService().
			Symbol(symbol).
			Side(closeSide).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatPrice(takeProfit)).
			ClosePosition(true).
			Do(ctx)
		if err != nil {
			return classify("modify_position", err)
		}
	}
	return nil
}

// positionByTicket resolves a synthetic ticket back to its symbol and
// direction via the live position listing.
func (c *Connector) positionByTicket(ctx context.Context, ticket int64) (string, broker.Direction, error) {
	positions, err := c.OpenPositions(ctx, "")
	if err != nil {
		return "", broker.DirectionLong, err
	}
	for _, p := range positions {
		if p.Ticket == ticket {
			return p.Instrument, p.Direction, nil
		}
	}
	return "", broker.DirectionLong, broker.NewError(broker.KindNotFound, "position_lookup", fmt.Sprintf("no open position for ticket %d", ticket), nil)
}

func (c *Connector) symbolInfo(ctx context.Context, instrument string) (symbolInfo, error) {
	symbol := strings.ToUpper(strings.TrimSpace(instrument))
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	if info, ok := c.symbols[symbol]; ok && time.Since(c.infoAsOf) < c.infoStale {
		return info, nil
	}
	c.sessionMu.Lock()
	exInfo, err := c.client.NewExchangeInfoService().Do(ctx)
	c.sessionMu.Unlock()
	if err != nil {
		return symbolInfo{}, classify("symbol_info", err)
	}
	c.symbols = make(map[string]symbolInfo, len(exInfo.Symbols))
	for i := range exInfo.Symbols {
		s := &exInfo.Symbols[i]
		info := symbolInfo{pricePrecision: s.PricePrecision}
		if f := s.PriceFilter(); f != nil {
			info.tickSize = parseFloat(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			info.minQty = parseFloat(f.MinQuantity)
			info.maxQty = parseFloat(f.MaxQuantity)
			info.stepQty = parseFloat(f.StepSize)
		}
		c.symbols[strings.ToUpper(s.Symbol)] = info
	}
	c.infoAsOf = time.Now()
	info, ok := c.symbols[symbol]
	if !ok {
		return symbolInfo{}, broker.NewError(broker.KindRejected, "symbol_info", "unknown symbol "+symbol, nil)
	}
	return info, nil
}

// orderIDPrefix tags entry orders so the magic can be read back from order
// history. Client order ids allow letters, digits and hyphens, 36 chars max.
const orderIDPrefix = "bst-"

func clientOrderID(magic int) string {
	return orderIDPrefix + strconv.Itoa(magic) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func magicFromOrderID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, orderIDPrefix)
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	magic, err := strconv.Atoi(rest)
	if err != nil || magic <= 0 {
		return 0, false
	}
	return magic, true
}

func (c *Connector) rememberMagic(symbol string, magic int) {
	if magic <= 0 {
		return
	}
	c.magicMu.Lock()
	c.magics[strings.ToUpper(symbol)] = magic
	c.magicMu.Unlock()
}

// magicFor resolves the entry magic for a symbol's position. A cache miss
// (typically after a restart) scans recent order history, newest first, for
// a tagged client order id. Callers hold the session mutex.
func (c *Connector) magicFor(ctx context.Context, symbol string) int {
	symbol = strings.ToUpper(symbol)
	c.magicMu.Lock()
	magic, ok := c.magics[symbol]
	c.magicMu.Unlock()
	if ok {
		return magic
	}
	orders, err := c.client.NewListOrdersService().Symbol(symbol).Limit(20).Do(ctx)
	if err != nil {
		return 0
	}
	for i := len(orders) - 1; i >= 0; i-- {
		if m, ok := magicFromOrderID(orders[i].ClientOrderID); ok {
			c.rememberMagic(symbol, m)
			return m
		}
	}
	return 0
}

func syntheticTicket(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

func parseFloat(raw string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return f
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
