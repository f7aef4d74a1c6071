package utils

import (
	"time"
)

// IndiaLocation is the timezone of NSE sessions.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MarketStatus is the NSE cash session phase.
type MarketStatus string

const (
	MarketClosed  MarketStatus = "CLOSED"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
)

// MarketStatusAt returns the session phase at t. Holidays are not known.
func MarketStatusAt(t time.Time) MarketStatus {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 9*60 && minutes < 9*60+15:
		return MarketPreOpen
	case minutes >= 9*60+15 && minutes < 15*60+30:
		return MarketOpen
	default:
		return MarketClosed
	}
}

// IsMarketOpenAt reports whether the cash session is trading at t.
func IsMarketOpenAt(t time.Time) bool {
	return MarketStatusAt(t) == MarketOpen
}

// NextMarketOpen returns the next 09:15 IST weekday open after t.
func NextMarketOpen(t time.Time) time.Time {
	now := t.In(IndiaLocation)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
