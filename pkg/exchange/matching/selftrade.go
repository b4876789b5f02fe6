package matching

import "github.com/joripage/skin-exchange/pkg/exchange/model"

// isSelfTrade reports whether filling taker against maker would cross two
// orders of the same account. The match loop skips such candidates and moves
// to the next one; neither order is cancelled.
func isSelfTrade(taker, maker *model.Order) bool {
	return taker.OwnerID == maker.OwnerID
}
