package mt5

import (
	"errors"
	"fmt"
)

// Trade retcodes surfaced by the terminal bridge.
const (
	RetRequote         = 10001
	RetRejected        = 10002
	RetCanceled        = 10003
	RetTimeout         = 10004
	RetInvalidRequest  = 10005
	RetInvalidVolume   = 10006
	RetInvalidPrice    = 10007
	RetInvalidStops    = 10008
	RetTradeDisabled   = 10009
	RetMarketClosed    = 10010
	RetNoMoney         = 10011
	RetPriceChanged    = 10012
	RetTooManyRequests = 10013
	RetNoChanges       = 10014
	RetServerBusy      = 10015
	RetPositionMissing = 10025
)

var retcodeMessages = map[int]string{
	RetRequote:         "requote",
	RetRejected:        "request rejected",
	RetCanceled:        "request canceled by trader",
	RetTimeout:         "order placement timeout",
	RetInvalidRequest:  "invalid request",
	RetInvalidVolume:   "invalid volume",
	RetInvalidPrice:    "invalid price",
	RetInvalidStops:    "invalid stops",
	RetTradeDisabled:   "trade is disabled",
	RetMarketClosed:    "market is closed",
	RetNoMoney:         "insufficient funds",
	RetPriceChanged:    "price changed",
	RetTooManyRequests: "too many requests",
	RetNoChanges:       "no changes",
	RetServerBusy:      "server is busy",
	RetPositionMissing: "position not found",
}

// Retcodes the terminal may clear on its own; everything else is a
// deliberate refusal and must not be retried.
var transientRetcodes = map[int]bool{
	RetRequote:         true,
	RetTimeout:         true,
	RetPriceChanged:    true,
	RetTooManyRequests: true,
	RetServerBusy:      true,
}

// Error is a broker-side failure. Code zero means the terminal could not
// be reached at all (always transient); otherwise Code is the bridge
// retcode.
type Error struct {
	Code      int
	Reason    string
	Transient bool
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("broker connection error: %s", e.Reason)
	}
	return fmt.Sprintf("broker error %d: %s", e.Code, e.Reason)
}

func retcodeError(code int, message string) *Error {
	reason := message
	if reason == "" {
		if m, ok := retcodeMessages[code]; ok {
			reason = m
		} else {
			reason = fmt.Sprintf("unknown retcode %d", code)
		}
	}
	return &Error{Code: code, Reason: reason, Transient: transientRetcodes[code]}
}

func connectionError(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...), Transient: true}
}

// IsTransient reports whether err is a broker fault worth retrying.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// IsConnectionError reports whether err means the terminal was
// unreachable, as opposed to the terminal refusing a request.
func IsConnectionError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == 0
}
