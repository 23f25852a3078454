package binance

import (
	"errors"

	"bastion/internal/gateway/broker"

	"github.com/adshao/go-binance/v2/common"
)

// classify maps SDK failures into the broker error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		kind := broker.KindRejected
		switch apiErr.Code {
		case -1000, -1001, -1007, -1021: // internal error, timeout, timestamp drift
			kind = broker.KindTransient
		case -2015, -2014: // invalid key / signature
			kind = broker.KindSustained
		case -2011, -2013: // unknown order / order does not exist
			kind = broker.KindNotFound
		}
		return &broker.Error{Kind: kind, Op: op, Code: int(apiErr.Code), Msg: apiErr.Message, Err: err}
	}
	// Transport-level failures (timeouts, resets) are transient.
	return broker.NewError(broker.KindOf(err), op, "binance request failed", err)
}
