package land

import (
	"fmt"
	"time"
)

type RentKind string

const (
	Rent24h    RentKind = "24h"
	Rent1Week  RentKind = "1w"
	Rent1Month RentKind = "1m"
	Rent1Year  RentKind = "1y"
)

// RentOption prices a lease as a fraction of the plot price. The fraction
// is kept in basis points so that prices floor exactly.
type RentOption struct {
	Label       string
	Duration    time.Duration
	BasisPoints int
}

const day = 24 * time.Hour

var rentOptions = map[RentKind]RentOption{
	Rent24h:    {Label: "24 hours", Duration: day, BasisPoints: 100},
	Rent1Week:  {Label: "1 week", Duration: 7 * day, BasisPoints: 500},
	Rent1Month: {Label: "1 month", Duration: 30 * day, BasisPoints: 1500},
	Rent1Year:  {Label: "1 year", Duration: 365 * day, BasisPoints: 10000},
}

func (o RentOption) Multiplier() float64 {
	return float64(o.BasisPoints) / 10000
}

func (o RentOption) Price(base int) int {
	return base * o.BasisPoints / 10000
}

func RentOptionFor(kind RentKind) (RentOption, error) {
	opt, ok := rentOptions[kind]
	if !ok {
		return RentOption{}, fmt.Errorf("%w: %q", ErrUnknownRentKind, kind)
	}
	return opt, nil
}

// ParseRentKind accepts both the short codes and the long spellings
// ("1week", "1month", "1year").
func ParseRentKind(s string) (RentKind, error) {
	switch s {
	case "24h":
		return Rent24h, nil
	case "1w", "1week":
		return Rent1Week, nil
	case "1m", "1month":
		return Rent1Month, nil
	case "1y", "1year":
		return Rent1Year, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRentKind, s)
}

// RentKinds lists the lease kinds shortest first.
func RentKinds() []RentKind {
	return []RentKind{Rent24h, Rent1Week, Rent1Month, Rent1Year}
}
