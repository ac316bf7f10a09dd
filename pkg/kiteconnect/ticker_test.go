package kiteconnect

import (
	"encoding/binary"
	"testing"
	"time"
)

func putU32(b []byte, off int, v uint32) { binary.BigEndian.PutUint32(b[off:off+4], v) }

func ltpPacket(token uint32, pricePaise uint32) []byte {
	p := make([]byte, packetLTP)
	putU32(p, 0, token)
	putU32(p, 4, pricePaise)
	return p
}

func quotePacket(token uint32, ltp, open, high, low, close_ uint32, volume uint32) []byte {
	p := make([]byte, packetQuote)
	putU32(p, 0, token)
	putU32(p, 4, ltp)
	putU32(p, 16, volume)
	putU32(p, 28, open)
	putU32(p, 32, high)
	putU32(p, 36, low)
	putU32(p, 40, close_)
	return p
}

func frame(packets ...[]byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(packets)))
	for _, p := range packets {
		var sz [2]byte
		binary.BigEndian.PutUint16(sz[:], uint16(len(p)))
		out = append(out, sz[:]...)
		out = append(out, p...)
	}
	return out
}

func TestParsePacketsLTP(t *testing.T) {
	ticks := ParsePackets(frame(ltpPacket(256265, 12345)))
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	tk := ticks[0]
	if tk.Mode != ModeLTP || tk.Token != 256265 || tk.LastPrice != 123.45 {
		t.Errorf("unexpected tick: %+v", tk)
	}
}

func TestParsePacketsQuote(t *testing.T) {
	ticks := ParsePackets(frame(quotePacket(408065, 9500, 8500, 10000, 8400, 9400, 120000)))
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	tk := ticks[0]
	if tk.Mode != ModeQuote {
		t.Errorf("mode = %s", tk.Mode)
	}
	if tk.LastPrice != 95 || tk.Open != 85 || tk.High != 100 || tk.Low != 84 || tk.Close != 94 {
		t.Errorf("prices wrong: %+v", tk)
	}
	if tk.Volume != 120000 {
		t.Errorf("volume = %d", tk.Volume)
	}
}

func TestParsePacketsMultiAndSkip(t *testing.T) {
	index := make([]byte, 28) // index packet size is skipped by this parser
	ticks := ParsePackets(frame(ltpPacket(1, 100), index, ltpPacket(2, 200)))
	if len(ticks) != 2 {
		t.Fatalf("expected 2 parsed ticks, got %d", len(ticks))
	}
	if ticks[0].Token != 1 || ticks[1].Token != 2 {
		t.Errorf("token order wrong: %+v", ticks)
	}
}

func TestParsePacketsFullDepthAndTimestamp(t *testing.T) {
	p := make([]byte, packetFull)
	putU32(p, 0, 738561)
	putU32(p, 4, 250050)
	ts := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	putU32(p, 60, uint32(ts.Unix()))
	// first buy level: qty 10, price 2500.25, orders 3
	putU32(p, 64, 10)
	putU32(p, 68, 250025)
	binary.BigEndian.PutUint16(p[72:74], 3)
	// first sell level sits 5 levels later
	putU32(p, 64+60, 7)
	putU32(p, 68+60, 250075)

	ticks := ParsePackets(frame(p))
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	tk := ticks[0]
	if tk.Mode != ModeFull {
		t.Errorf("mode = %s", tk.Mode)
	}
	if !tk.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", tk.Timestamp, ts)
	}
	if tk.Depth == nil {
		t.Fatal("depth missing")
	}
	if tk.Depth.Buy[0].Quantity != 10 || tk.Depth.Buy[0].Price != 2500.25 || tk.Depth.Buy[0].Orders != 3 {
		t.Errorf("buy depth wrong: %+v", tk.Depth.Buy[0])
	}
	if tk.Depth.Sell[0].Price != 2500.75 {
		t.Errorf("sell depth wrong: %+v", tk.Depth.Sell[0])
	}
}

func TestParsePacketsHeartbeat(t *testing.T) {
	if ticks := ParsePackets([]byte{0}); ticks != nil {
		t.Errorf("heartbeat should parse to nil, got %v", ticks)
	}
}
