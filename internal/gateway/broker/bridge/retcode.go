package bridge

import (
	"fmt"

	"bastion/internal/gateway/broker"

	"github.com/tidwall/gjson"
)

// Terminal trade-server return codes surfaced by the bridge.
const (
	retcodeDone         = 10009
	retcodeRequote      = 10004
	retcodeRejected     = 10006
	retcodeTimeout      = 10012
	retcodeInvalid      = 10013
	retcodeInvalidStops = 10016
	retcodeMarketClosed = 10018
	retcodeNoMoney      = 10019
	retcodePriceOff     = 10021
	retcodePositionGone = 10036
	retcodeNoConnection = 10031
)

// retcodeError converts a bridge trade response into the error taxonomy.
// A zero retcode means the bridge reported plain success.
func retcodeError(op string, res gjson.Result) error {
	code := int(res.Get("retcode").Int())
	if code == 0 || code == retcodeDone {
		return nil
	}
	msg := res.Get("message").String()
	if msg == "" {
		msg = fmt.Sprintf("retcode=%d", code)
	}
	err := &broker.Error{Op: op, Code: code, Msg: msg}
	switch code {
	case retcodeRequote, retcodeTimeout, retcodePriceOff:
		err.Kind = broker.KindTransient
	case retcodeNoConnection:
		err.Kind = broker.KindSustained
	case retcodePositionGone:
		err.Kind = broker.KindNotFound
	case retcodeRejected, retcodeInvalid, retcodeInvalidStops, retcodeMarketClosed, retcodeNoMoney:
		err.Kind = broker.KindRejected
	default:
		err.Kind = broker.KindRejected
	}
	return err
}
