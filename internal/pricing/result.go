package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnauthorized is returned when the API keeps rejecting the configured
// key. It aborts the whole run.
var ErrUnauthorized = errors.New("coingecko rejected the api key")

// Reason explains why a price could not be obtained.
type Reason string

const (
	ReasonNoData           Reason = "no_data"
	ReasonBadRequest       Reason = "bad_request"
	ReasonQuotaExhausted   Reason = "quota_exhausted"
	ReasonRetriesExhausted Reason = "retries_exhausted"
)

// Reasons lists every absence reason in reporting order.
var Reasons = []Reason{ReasonNoData, ReasonBadRequest, ReasonQuotaExhausted, ReasonRetriesExhausted}

// Result is the outcome of one historical price lookup. Exactly one of
// Found or Reason is meaningful.
type Result struct {
	Price  decimal.Decimal
	Found  bool
	Reason Reason
}

// Found wraps a price.
func Found(price decimal.Decimal) Result {
	return Result{Price: price, Found: true}
}

// Absent records that no price is available.
func Absent(reason Reason) Result {
	return Result{Reason: reason}
}

func (r Result) String() string {
	if r.Found {
		return r.Price.String()
	}
	return "absent(" + string(r.Reason) + ")"
}
