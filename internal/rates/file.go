package rates

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ledger/internal/core"
)

// RateFile is the YAML document read by `ledgerctl rates import` and the
// optional seed file:
//
//	provider: manual
//	rates:
//	  - date: 2024-03-01
//	    from: USD
//	    to: EUR
//	    rate: 0.92
type RateFile struct {
	Provider string      `yaml:"provider,omitempty"`
	Rates    []RateEntry `yaml:"rates"`
}

type RateEntry struct {
	Date yamlDate    `yaml:"date"`
	From string      `yaml:"from"`
	To   string      `yaml:"to"`
	Rate yamlDecimal `yaml:"rate"`
}

type yamlDate struct{ core.Date }

func (d *yamlDate) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := core.ParseDate(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Date = parsed
	return nil
}

func (d yamlDate) MarshalYAML() (any, error) {
	return d.String(), nil
}

type yamlDecimal struct{ decimal.Decimal }

func (v *yamlDecimal) UnmarshalYAML(n *yaml.Node) error {
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid rate %q", n.Line, n.Value)
	}
	v.Decimal = d
	return nil
}

func (v yamlDecimal) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v.String()}
	return n, nil
}

// DecodeRates reads a RateFile and validates every entry.
func DecodeRates(r io.Reader, fetchedAt time.Time) ([]core.ExchangeRate, error) {
	var f RateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rate file: %w", err)
	}

	provider := f.Provider
	if provider == "" {
		provider = "file"
	}
	out := make([]core.ExchangeRate, 0, len(f.Rates))
	for i, e := range f.Rates {
		src, err := core.ParseCurrency(e.From)
		if err != nil {
			return nil, fmt.Errorf("rate %d: %w", i+1, err)
		}
		tgt, err := core.ParseCurrency(e.To)
		if err != nil {
			return nil, fmt.Errorf("rate %d: %w", i+1, err)
		}
		rate := core.ExchangeRate{
			Source:    src,
			Target:    tgt,
			AsOf:      e.Date.Date,
			Rate:      e.Rate.Decimal,
			Provider:  provider,
			FetchedAt: fetchedAt.UTC(),
		}
		if err := rate.Validate(); err != nil {
			return nil, fmt.Errorf("rate %d: %w", i+1, err)
		}
		out = append(out, rate)
	}
	return out, nil
}

// LoadRateFile opens path and decodes it with DecodeRates.
func LoadRateFile(path string) ([]core.ExchangeRate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rate file: %w", err)
	}
	defer f.Close()
	return DecodeRates(f, time.Now())
}

// EncodeRates writes rates in the RateFile format.
func EncodeRates(w io.Writer, rates []core.ExchangeRate) error {
	f := RateFile{Rates: make([]RateEntry, len(rates))}
	for i, r := range rates {
		f.Rates[i] = RateEntry{
			Date: yamlDate{r.AsOf},
			From: string(r.Source),
			To:   string(r.Target),
			Rate: yamlDecimal{r.Rate},
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	return enc.Close()
}
