// Package dividends provides the demo tools served by the dividends tool host.
package dividends

import (
	"context"
	_ "embed"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/tools"
	"gopkg.in/yaml.v3"
)

// Tool names.
const (
	ToolGetDividends = "get_dividends"
	ToolGetQuote     = "get_quote"
)

//go:embed data.yaml
var embeddedData []byte

// Dividend is a dividend payment.
type Dividend struct {
	Amount    float64 `json:"amount" yaml:"amount"`
	ExDate    string  `json:"ex_date" yaml:"ex_date"`
	PayDate   string  `json:"pay_date" yaml:"pay_date"`
	Frequency string  `json:"frequency" yaml:"frequency"`
}

// Security is the market data known for a symbol.
type Security struct {
	Name      string     `json:"name" yaml:"name"`
	Currency  string     `json:"currency" yaml:"currency"`
	Price     float64    `json:"price" yaml:"price"`
	Dividends []Dividend `json:"dividends,omitempty" yaml:"dividends,omitempty"`
}

// Data is the market data set, keyed by symbol.
type Data struct {
	Symbols map[string]*Security `json:"symbols" yaml:"symbols"`
}

// Load parses the YAML market data.
func Load(b []byte) (*Data, error) {
	d := new(Data)
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, errors.Wrap(err, "failed to parse market data")
	}
	if len(d.Symbols) == 0 {
		return nil, errors.New("market data has no symbols")
	}
	return d, nil
}

// Default returns the embedded market data.
func Default() (*Data, error) {
	return Load(embeddedData)
}

// Known returns the known symbols, sorted.
func (d *Data) Known() []string {
	list := make([]string, 0, len(d.Symbols))
	for s := range d.Symbols {
		list = append(list, s)
	}
	sort.Strings(list)
	return list
}

func (d *Data) lookup(symbol string) (string, *Security, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	sec := d.Symbols[symbol]
	if sec == nil {
		return "", nil, errors.Newf("unknown symbol: %s", symbol)
	}
	return symbol, sec, nil
}

// SymbolRequest is the input of the tools.
type SymbolRequest struct {
	Symbol string `json:"symbol" jsonschema:"description=Stock ticker symbol,example=AAPL" validate:"required"`
}

// DividendInfo is the output of get_dividends.
type DividendInfo struct {
	Symbol    string  `json:"symbol"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	ExDate    string  `json:"ex_date"`
	PayDate   string  `json:"pay_date"`
	Frequency string  `json:"frequency"`
}

// Quote is the output of get_quote.
type Quote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// LatestDividend returns the most recent dividend of the symbol.
func (d *Data) LatestDividend(_ context.Context, in *SymbolRequest) (*DividendInfo, error) {
	symbol, sec, err := d.lookup(in.Symbol)
	if err != nil {
		return nil, err
	}
	if len(sec.Dividends) == 0 {
		return nil, errors.Newf("no dividends for symbol: %s", symbol)
	}
	latest := sec.Dividends[0]
	for _, div := range sec.Dividends[1:] {
		if div.ExDate > latest.ExDate {
			latest = div
		}
	}
	return &DividendInfo{
		Symbol:    symbol,
		Amount:    latest.Amount,
		Currency:  sec.Currency,
		ExDate:    latest.ExDate,
		PayDate:   latest.PayDate,
		Frequency: latest.Frequency,
	}, nil
}

// LatestQuote returns the latest price of the symbol.
func (d *Data) LatestQuote(_ context.Context, in *SymbolRequest) (*Quote, error) {
	symbol, sec, err := d.lookup(in.Symbol)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Symbol:   symbol,
		Price:    sec.Price,
		Currency: sec.Currency,
	}, nil
}

// Tools returns get_dividends and get_quote over the data.
func Tools(d *Data) ([]tools.Tool, error) {
	div, err := tools.NewFunc(ToolGetDividends,
		"Returns the latest dividend paid for a stock: amount, currency, ex-dividend and payment dates",
		d.LatestDividend)
	if err != nil {
		return nil, err
	}
	quote, err := tools.NewFunc(ToolGetQuote,
		"Returns the latest price of a stock",
		d.LatestQuote)
	if err != nil {
		return nil, err
	}
	return []tools.Tool{div, quote}, nil
}
