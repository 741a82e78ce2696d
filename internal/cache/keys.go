package cache

// PositionsKey identifies a cached positions response. An empty Account means
// the whole ledger.
type PositionsKey struct {
	Account string
}

func PositionsAll() PositionsKey {
	return PositionsKey{}
}
func PositionsByAccount(account string) PositionsKey {
	return PositionsKey{Account: account}
}

// String is the ristretto key for the response.
func (k PositionsKey) String() string {
	if k.Account == "" {
		return "positions:*"
	}
	return "positions:" + k.Account
}

// SplitsKey identifies the current split table response by publish version.
type SplitsKey struct {
	Version uint64
}

func Splits(version uint64) SplitsKey {
	return SplitsKey{Version: version}
}
