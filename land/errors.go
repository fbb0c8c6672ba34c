package land

import "errors"

var (
	ErrPlotNotFound      = errors.New("plot not found")
	ErrPlotUnavailable   = errors.New("plot unavailable")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotOwner          = errors.New("land not owned by actor")
	ErrPlotOverlap       = errors.New("plot overlaps an existing plot")
	ErrUnknownRentKind   = errors.New("unknown rent duration")
	ErrInvalidSnapshot   = errors.New("invalid land snapshot")
)
