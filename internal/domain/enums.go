package domain

import "strings"

// Side is derived from the sign of a fill quantity.
type Side string

const (
	SideNone Side = "none"
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) String() string { return string(s) }

func SideOf(quantity int64) Side {
	switch {
	case quantity > 0:
		return SideBuy
	case quantity < 0:
		return SideSell
	default:
		return SideNone
	}
}

func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b":
		return SideBuy, true
	case "sell", "s":
		return SideSell, true
	case "", "none":
		return SideNone, true
	default:
		return "", false
	}
}
