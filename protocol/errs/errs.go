// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package errs defines the protocol failure codes. Codes are small
// integers partitioned by component; callers match on the code, never
// on the message text.
package errs

import (
	"errors"
	"fmt"
)

// Code is a protocol failure code.
type Code int

// Shared codes (1xxx).
const (
	CodeUnauthorized Code = 1001
	CodeNotProtocol  Code = 1002
)

// Reward distributor codes (2xxx).
const (
	CodeClaimsDisabled   Code = 2001
	CodeBatchTooLarge    Code = 2003
	CodeDepositsShutdown Code = 2004
	CodeTransferFailed   Code = 2005
)

// Capital allocation codes (3xxx).
const (
	CodeWrongCycleState       Code = 3001
	CodeDelegateMismatch      Code = 3002
	CodeOutflowExceedsLocked  Code = 3003
	CodeCycleAlreadyProcessed Code = 3004
	CodeUnknownPool           Code = 3005
)

// Withdrawal codes (4xxx).
const (
	CodeUnlockNotReached    Code = 4001
	CodeUnknownTicket       Code = 4002
	CodeInsufficientBalance Code = 4003
	CodeNotTicketHolder     Code = 4004
	CodePastUnlock          Code = 4005
)

// Position registry codes (5xxx).
const (
	CodeUnknownPosition       Code = 5001
	CodeReactivationForbidden Code = 5002
	CodePositionInactive      Code = 5003
)

// Kind is the failure taxonomy class of a code.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindTiming
	KindConflict
	KindFunds
	KindExternal
)

// Kind derives the taxonomy class of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeUnauthorized, CodeNotProtocol, CodeNotTicketHolder:
		return KindAuth
	case CodeUnlockNotReached, CodePastUnlock, CodeWrongCycleState:
		return KindTiming
	case CodeInsufficientBalance, CodeOutflowExceedsLocked, CodeBatchTooLarge:
		return KindFunds
	case CodeTransferFailed:
		return KindExternal
	default:
		return KindConflict
	}
}

// Retryable reports whether re-submitting the same operation later can
// succeed without any other state change.
func (k Kind) Retryable() bool {
	return k == KindTiming
}

// Error is a protocol failure value. It never partially applies:
// operations returning an Error leave state untouched.
type Error struct {
	code Code
	msg  string
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.msg, e.code)
}

func (e *Error) Code() Code {
	return e.code
}

// CodeOf extracts the protocol code from err.
// The second return value is false if err carries no code.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
