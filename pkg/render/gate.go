package render

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/authz"
)

// State is the visibility of a gated UI element. A lookup that has not
// finished is loading; loading is never rendered as allowed.
type State int

const (
	StateLoading State = iota
	StateDenied
	StateAllowed
)

// String returns the state name for templates and logs.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAllowed:
		return "allowed"
	case StateDenied:
		return "denied"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Evaluator is the slice of the permission evaluator the render gate
// needs.
type Evaluator interface {
	Evaluate(ctx context.Context, check authz.Check) (authz.Decision, error)
}

// Gate answers "should this element render" questions for UI code. It
// fails closed: evaluation errors and panics surface as denied, never
// as allowed.
type Gate struct {
	evaluator Evaluator
	logger    *logrus.Logger
}

// NewGate creates a render gate around the evaluator.
func NewGate(evaluator Evaluator, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gate{evaluator: evaluator, logger: logger}
}

// Lookup is one in-flight permission check. Callers poll State for
// non-blocking reads or Wait for the settled decision.
type Lookup struct {
	check    authz.Check
	done     chan struct{}
	decision authz.Decision
	err      error
}

// Start launches an asynchronous check. The returned Lookup reports
// StateLoading until the evaluator answers.
func (g *Gate) Start(ctx context.Context, check authz.Check) *Lookup {
	l := &Lookup{check: check, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(logrus.Fields{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("render gate evaluation panicked")
				l.decision = authz.Decision{Allowed: false, Reason: "evaluation panicked"}
			}
		}()

		decision, err := g.evaluator.Evaluate(ctx, check)
		if err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":  check.UserID,
				"action":   check.Action,
				"resource": check.Resource,
			}).Warn("render gate evaluation failed")
			l.err = err
			l.decision = authz.Decision{Allowed: false, Reason: "evaluation failed"}
			return
		}
		l.decision = decision
	}()

	return l
}

// State reports the current state without blocking.
func (l *Lookup) State() State {
	select {
	case <-l.done:
		if l.decision.Allowed {
			return StateAllowed
		}
		return StateDenied
	default:
		return StateLoading
	}
}

// Wait blocks until the decision settles or ctx is done. Cancellation
// reports denied; an unfinished lookup must never render as allowed.
func (l *Lookup) Wait(ctx context.Context) State {
	select {
	case <-l.done:
		if l.decision.Allowed {
			return StateAllowed
		}
		return StateDenied
	case <-ctx.Done():
		return StateDenied
	}
}

// Decision returns the settled decision. Valid only after Wait returned
// or State reported a terminal value.
func (l *Lookup) Decision() authz.Decision {
	return l.decision
}

// Err returns the evaluation error, if any. Errors always present as
// denied; Err exists so UI code can show a retry affordance instead of
// a hard "no access" message.
func (l *Lookup) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Can evaluates synchronously and fails closed.
func (g *Gate) Can(ctx context.Context, check authz.Check) bool {
	decision, err := g.evaluator.Evaluate(ctx, check)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  check.UserID,
			"action":   check.Action,
			"resource": check.Resource,
		}).Warn("render gate evaluation failed")
		return false
	}
	return decision.Allowed
}
