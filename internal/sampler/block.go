package sampler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places kept for every pool value.
const valuePlaces = 2

// BlockSample is the shielded pool state at one height. Immutable once produced.
type BlockSample struct {
	Timestamp time.Time
	Height    int64
	Sprout    decimal.Decimal
	Sapling   decimal.Decimal
	Orchard   decimal.Decimal
	Total     decimal.Decimal
}

type sampleJSON struct {
	T  int64       `json:"t"`
	H  int64       `json:"h"`
	Sp json.Number `json:"sp"`
	Sa json.Number `json:"sa"`
	Or json.Number `json:"or"`
	V  json.Number `json:"v"`
}

// MarshalJSON emits the compact feed representation with numeric values.
func (b BlockSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		T:  b.Timestamp.Unix(),
		H:  b.Height,
		Sp: json.Number(b.Sprout.String()),
		Sa: json.Number(b.Sapling.String()),
		Or: json.Number(b.Orchard.String()),
		V:  json.Number(b.Total.String()),
	})
}

// UnmarshalJSON reads the compact feed representation.
func (b *BlockSample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parse := func(n json.Number) (decimal.Decimal, error) {
		if n == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(n.String())
	}
	var err error
	out := BlockSample{Timestamp: time.Unix(raw.T, 0).UTC(), Height: raw.H}
	if out.Sprout, err = parse(raw.Sp); err != nil {
		return err
	}
	if out.Sapling, err = parse(raw.Sa); err != nil {
		return err
	}
	if out.Orchard, err = parse(raw.Or); err != nil {
		return err
	}
	if out.Total, err = parse(raw.V); err != nil {
		return err
	}
	*b = out
	return nil
}

// Series is ordered by ascending height with unique heights.
type Series []BlockSample

// Last returns the most recent sample.
func (s Series) Last() (BlockSample, bool) {
	if len(s) == 0 {
		return BlockSample{}, false
	}
	return s[len(s)-1], true
}

// Totals returns the total values in height order.
func (s Series) Totals() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s))
	for i, b := range s {
		out[i] = b.Total
	}
	return out
}

type blockResult struct {
	Height     int64       `json:"height"`
	Time       int64       `json:"time"`
	ValuePools []valuePool `json:"valuePools"`
}

type valuePool struct {
	ID            string          `json:"id"`
	ChainValue    decimal.Decimal `json:"chainValue"`
	ChainValueZat *int64          `json:"chainValueZat"`
}

func (p valuePool) value() decimal.Decimal {
	if p.ChainValueZat != nil {
		return decimal.New(*p.ChainValueZat, -8)
	}
	return p.ChainValue
}

// parseBlock decodes a verbosity=1 getblock result. Missing pools count as zero.
func parseBlock(height int64, raw json.RawMessage) (BlockSample, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return BlockSample{}, fmt.Errorf("block %d: empty result", height)
	}

	var res blockResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return BlockSample{}, fmt.Errorf("block %d: decode: %w", height, err)
	}

	pools := map[string]decimal.Decimal{}
	for _, p := range res.ValuePools {
		pools[p.ID] = p.value()
	}
	sprout, sapling, orchard := pools["sprout"], pools["sapling"], pools["orchard"]

	return BlockSample{
		Timestamp: time.Unix(res.Time, 0).UTC(),
		Height:    height,
		Sprout:    sprout.Round(valuePlaces),
		Sapling:   sapling.Round(valuePlaces),
		Orchard:   orchard.Round(valuePlaces),
		Total:     sprout.Add(sapling).Add(orchard).Round(valuePlaces),
	}, nil
}
