package feed

import (
	"time"

	"breakout-trader/internal/model"
	"breakout-trader/pkg/kiteconnect"
)

// Field names one tick attribute carried by a partial packet. The OHLC
// members get individual bits so a merge can overwrite exactly the inner
// keys the wire actually sent.
type Field uint16

const (
	FieldLastPrice Field = 1 << iota
	FieldVolume
	FieldOpen
	FieldHigh
	FieldLow
	FieldClose
	FieldDepth
	FieldTimestamp
)

// Packet is a wire-partial tick: only the attributes named by Fields are
// meaningful. An empty Fields mask is a no-op when applied.
type Packet struct {
	Token     uint32
	Fields    Field
	LastPrice float64
	Volume    int64
	OHLC      model.OHLC
	Depth     *model.Depth
	Timestamp time.Time
}

// Has reports whether the packet carries the given field.
func (p Packet) Has(f Field) bool { return p.Fields&f != 0 }

// FromTick converts a parsed broker tick into a merge packet. The mode
// decides which fields the wire actually carried.
func FromTick(t kiteconnect.Tick) Packet {
	p := Packet{Token: t.Token}

	switch t.Mode {
	case kiteconnect.ModeFull:
		p.Fields = FieldLastPrice | FieldVolume | FieldOpen | FieldHigh | FieldLow | FieldClose
		p.LastPrice = t.LastPrice
		p.Volume = t.Volume
		p.OHLC = model.OHLC{Open: t.Open, High: t.High, Low: t.Low, Close: t.Close}
		if t.Depth != nil {
			p.Fields |= FieldDepth
			p.Depth = convertDepth(t.Depth)
		}
		if !t.Timestamp.IsZero() {
			p.Fields |= FieldTimestamp
			p.Timestamp = t.Timestamp
		}
	case kiteconnect.ModeQuote:
		p.Fields = FieldLastPrice | FieldVolume | FieldOpen | FieldHigh | FieldLow | FieldClose
		p.LastPrice = t.LastPrice
		p.Volume = t.Volume
		p.OHLC = model.OHLC{Open: t.Open, High: t.High, Low: t.Low, Close: t.Close}
	default: // ltp
		p.Fields = FieldLastPrice
		p.LastPrice = t.LastPrice
	}
	return p
}

func convertDepth(d *kiteconnect.TickDepth) *model.Depth {
	out := &model.Depth{
		Buy:  make([]model.DepthItem, 0, len(d.Buy)),
		Sell: make([]model.DepthItem, 0, len(d.Sell)),
	}
	for _, l := range d.Buy {
		out.Buy = append(out.Buy, model.DepthItem{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders})
	}
	for _, l := range d.Sell {
		out.Sell = append(out.Sell, model.DepthItem{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders})
	}
	return out
}
