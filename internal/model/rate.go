package model

import (
	"fmt"
	"time"
)

// MinTick is the smallest representable price increment. Every emitted
// rate keeps Ask >= Bid + MinTick.
const MinTick = 1e-8

// RawTick is one bid/ask observation received from a subscriber adapter.
// It is immutable once emitted.
type RawTick struct {
	Platform string
	Symbol   string
	Bid      float64
	Ask      float64
	Venue    string
	Ts       time.Time
}

// Rate is the normalized unit flowing through the coordinator, formula
// engine, distribution server and publishers.
type Rate struct {
	Name string
	Bid  float64
	Ask  float64
	Ts   time.Time
}

// Valid reports whether the rate satisfies the bid/ask invariants.
func (r Rate) Valid() bool {
	return r.Bid > 0 && r.Ask >= r.Bid+MinTick
}

// Line renders the stable wire form pushed to distribution clients.
func (r Rate) Line() string {
	return fmt.Sprintf("%s|%.8f|%.8f|%d", r.Name, r.Bid, r.Ask, r.Ts.UnixMilli())
}

// FromTick normalizes a raw tick into a rate keyed by symbol.
func FromTick(t RawTick) Rate {
	return Rate{
		Name: t.Symbol,
		Bid:  t.Bid,
		Ask:  t.Ask,
		Ts:   t.Ts,
	}
}
