package eip1193

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider error codes (EIP-1193 and EIP-1474).
const (
	CodeInvalidInput          = -32000
	CodeResourceNotFound      = -32001
	CodeResourceUnavailable   = -32002
	CodeTransactionRejected   = -32003
	CodeMethodNotSupported    = -32004
	CodeLimitExceeded         = -32005
	CodeParse                 = -32700
	CodeInvalidRequest        = -32600
	CodeMethodNotFound        = -32601
	CodeInvalidParams         = -32602
	CodeInternal              = -32603
	CodeUserRejectedRequest   = 4001
	CodeUnauthorized          = 4100
	CodeUnsupportedMethod     = 4200
	CodeDisconnected          = 4900
	CodeChainDisconnected     = 4901
	CodeMissingRequestedChain = 4902
)

var (
	// ErrProviderUnavailable means no signing agent was detected.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRequestAlreadyPending means the agent already shows a prompt of the same kind.
	ErrRequestAlreadyPending = errors.New("request already pending")
	// ErrUserRejected means the user declined a prompt.
	ErrUserRejected = errors.New("action rejected by user")
)

// ProviderError is a JSON-RPC error returned by a wallet provider.
type ProviderError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError builds a ProviderError.
func NewError(code int, msg string) *ProviderError {
	return &ProviderError{Code: code, Message: msg}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode makes ProviderError satisfy go-ethereum's rpc.Error.
func (e *ProviderError) ErrorCode() int { return e.Code }

type coder interface {
	ErrorCode() int
}

// CodeOf returns the provider error code carried anywhere in err's chain.
func CodeOf(err error) (int, bool) {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode(), true
	}
	return 0, false
}

// HasCode reports whether err carries one of codes.
func HasCode(err error, codes ...int) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsMissingChain reports a "chain not recognised" failure. Some wallets send
// an internal error instead of 4902.
func IsMissingChain(err error) bool {
	return HasCode(err, CodeMissingRequestedChain, CodeInternal)
}

// IsUserRejected reports a user rejection.
func IsUserRejected(err error) bool {
	return errors.Is(err, ErrUserRejected) || HasCode(err, CodeUserRejectedRequest)
}

// IsRequestPending reports an already outstanding request of the same kind.
func IsRequestPending(err error) bool {
	return errors.Is(err, ErrRequestAlreadyPending) || HasCode(err, CodeResourceUnavailable)
}

// IsUnsupportedMethod reports that the provider cannot serve the method.
func IsUnsupportedMethod(err error) bool {
	return HasCode(err, CodeUnsupportedMethod, CodeMethodNotSupported, CodeMethodNotFound)
}

// MessageContains matches err's text case-insensitively.
func MessageContains(err error, substr string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), strings.ToLower(substr))
}
