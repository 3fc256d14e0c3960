package orderbook

import "github.com/shopspring/decimal"

// Fee rates are fixed for the life of the engine; settlement of the
// resulting amounts is an external collaborator's concern (§4.3).
var (
	MakerFeeRate = decimal.NewFromFloat(0.0010)
	TakerFeeRate = decimal.NewFromFloat(0.0020)
)

// calcFees computes maker/taker fees for one fill. qty and price are
// decimal values converted from quantity units and ticks, so the arithmetic matches the reference's
// decimal semantics exactly rather than drifting under binary floats.
func calcFees(qty, price decimal.Decimal) (taker, maker decimal.Decimal) {
	value := qty.Mul(price)
	return value.Mul(TakerFeeRate), value.Mul(MakerFeeRate)
}
