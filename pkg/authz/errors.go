package authz

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a malformed evaluation request (missing user or
// organization id). This is a programmer error, distinct from a deny
// decision; gates translate it to 400, never to 403.
var ErrInvalidInput = errors.New("authz: invalid input")

// BusinessRuleError is a violation of a membership-mutation rule (last
// owner removal, DEV self-escalation, impersonation of protected users).
// HTTP boundaries surface it as 422, distinguishable from a plain deny.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s: %s", e.Rule, e.Message)
}

// NewBusinessRuleError builds a BusinessRuleError for the given rule.
func NewBusinessRuleError(rule, format string, args ...interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsBusinessRule reports whether err is (or wraps) a BusinessRuleError.
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}
