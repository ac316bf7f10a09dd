package feed

import (
	"sync"

	"breakout-trader/internal/model"
)

// Store is the live tick table: the latest coalesced snapshot per token.
// Apply merges a partial packet into a fresh copy of the stored tick and
// publishes the copy, so a pointer handed to a reader never changes under
// it. Fields set by an earlier packet survive later packets that omit them.
type Store struct {
	mu    sync.RWMutex
	ticks map[uint32]*model.Tick
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{ticks: make(map[uint32]*model.Tick)}
}

// Apply merges pkt into the stored tick for its token. Packets with an
// empty field mask or a zero token are ignored.
func (s *Store) Apply(pkt Packet) {
	if pkt.Token == 0 || pkt.Fields == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next *model.Tick
	if prev, ok := s.ticks[pkt.Token]; ok {
		next = prev.Clone()
	} else {
		next = &model.Tick{Token: pkt.Token}
	}

	if pkt.Has(FieldLastPrice) {
		next.LastPrice = pkt.LastPrice
	}
	if pkt.Has(FieldVolume) {
		next.Volume = pkt.Volume
	}
	if pkt.Has(FieldOpen) {
		next.OHLC.Open = pkt.OHLC.Open
	}
	if pkt.Has(FieldHigh) {
		next.OHLC.High = pkt.OHLC.High
	}
	if pkt.Has(FieldLow) {
		next.OHLC.Low = pkt.OHLC.Low
	}
	if pkt.Has(FieldClose) {
		next.OHLC.Close = pkt.OHLC.Close
	}
	if pkt.Has(FieldDepth) && pkt.Depth != nil {
		if next.Depth == nil {
			next.Depth = &model.Depth{}
		}
		// Sides are replaced wholesale; a packet carrying only one side
		// leaves the other side's ladder intact.
		if len(pkt.Depth.Buy) > 0 {
			next.Depth.Buy = append([]model.DepthItem(nil), pkt.Depth.Buy...)
		}
		if len(pkt.Depth.Sell) > 0 {
			next.Depth.Sell = append([]model.DepthItem(nil), pkt.Depth.Sell...)
		}
	}
	if pkt.Has(FieldTimestamp) {
		next.Timestamp = pkt.Timestamp
	}

	s.ticks[pkt.Token] = next
}

// Get returns the latest published tick for token. The returned tick is
// immutable; callers must not modify it.
func (s *Store) Get(token uint32) (*model.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[token]
	return t, ok
}

// Len returns the number of tokens that have received at least one tick.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}

// All returns a snapshot of the table. The ticks themselves are shared
// immutable records.
func (s *Store) All() map[uint32]*model.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]*model.Tick, len(s.ticks))
	for k, v := range s.ticks {
		out[k] = v
	}
	return out
}

// Clear drops every stored tick.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = make(map[uint32]*model.Tick)
}
