package x402

import (
	"errors"
	"reflect"
	"strings"
)

// CodeUserRejected is the EIP-1193 "user rejected the request" error code.
const CodeUserRejected = 4001

// CodeUnrecognizedChain is the EIP-1193 error code returned by
// wallet_switchEthereumChain when the wallet does not know the chain.
const CodeUnrecognizedChain = 4902

var rejectionNames = map[string]bool{
	"UserRejectedRequestError": true,
	"UserRejectedError":        true,
	"ACTION_REJECTED":          true,
}

var alreadyConnectedNames = map[string]bool{
	"ConnectorAlreadyConnectedError": true,
	"AlreadyConnectedError":          true,
}

// ProviderError is an error reported by a wallet provider. It carries the
// EIP-1193 shape: a numeric code, a message and an optional error name.
type ProviderError struct {
	Code    int
	Message string
	Name    string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "wallet provider error"
}

// ErrorCode returns the provider error code. It matches go-ethereum's
// rpc.Error so both are classified the same way.
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// ErrorName returns the provider's error name, if any.
func (e *ProviderError) ErrorName() string {
	return e.Name
}

// IsUserRejection reports whether err means the user declined a wallet
// prompt. Wallets disagree on error shapes, so it checks, across the whole
// wrap chain: the ErrUserRejected sentinel, an EIP-1193 code of 4001, a known
// rejection error name, and finally a "user rejected" message.
func IsUserRejection(err error) (rejected bool) {
	if err == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			rejected = false
		}
	}()

	if errors.Is(err, ErrUserRejected) {
		return true
	}
	return anyInChain(err, func(e error) bool {
		if coded, ok := e.(interface{ ErrorCode() int }); ok && coded.ErrorCode() == CodeUserRejected {
			return true
		}
		if rejectionNames[errorName(e)] {
			return true
		}
		msg := strings.ToLower(e.Error())
		return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
	})
}

// IsAlreadyConnected reports whether err means the wallet is already
// connected, so a duplicate connect attempt can be treated as success.
func IsAlreadyConnected(err error) (connected bool) {
	if err == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			connected = false
		}
	}()

	if errors.Is(err, ErrAlreadyConnected) {
		return true
	}
	return anyInChain(err, func(e error) bool {
		if alreadyConnectedNames[errorName(e)] {
			return true
		}
		return strings.Contains(strings.ToLower(e.Error()), "already connected")
	})
}

// HasErrorCode reports whether any error in err's chain carries code.
func HasErrorCode(err error, code int) bool {
	return anyInChain(err, func(e error) bool {
		coded, ok := e.(interface{ ErrorCode() int })
		return ok && coded.ErrorCode() == code
	})
}

// errorName returns an explicit error name when the error exposes one,
// otherwise its Go type name.
func errorName(err error) string {
	if named, ok := err.(interface{ ErrorName() string }); ok {
		if name := named.ErrorName(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

func anyInChain(err error, match func(error) bool) bool {
	if err == nil {
		return false
	}
	if match(err) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return anyInChain(u.Unwrap(), match)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if anyInChain(e, match) {
				return true
			}
		}
	}
	return false
}
