package gate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

type State string

const (
	StateRunningGate   State = "RUNNING_GATE"
	StateGeneratingFix State = "GENERATING_FIX"
	StateApplyingFix   State = "APPLYING_FIX"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Machine is the gate loop state. Values are never mutated in place; use Transition.
type Machine struct {
	State       State
	MaxAttempts int
	attempts    []model.GateAttempt
	last        *model.CommandFailedError
}

func NewMachine(maxAttempts int) Machine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Machine{State: StateRunningGate, MaxAttempts: maxAttempts}
}

// Attempts returns a copy of the gate runs recorded so far.
func (m Machine) Attempts() []model.GateAttempt {
	return append([]model.GateAttempt(nil), m.attempts...)
}

// LastFailure is the most recent failed gate run, or nil.
func (m Machine) LastFailure() *model.CommandFailedError { return m.last }

func (m Machine) Terminal() bool {
	return m.State == StateDone || m.State == StateFailed
}

// Outcome is what happened in the current state. Attempt is read only in
// StateRunningGate; Failure is set when that run failed.
type Outcome struct {
	Attempt model.GateAttempt
	Failure *model.CommandFailedError
}

// Transition returns the state that follows m given o.
func Transition(m Machine, o Outcome) Machine {
	next := m
	switch m.State {
	case StateRunningGate:
		a := o.Attempt
		a.Index = len(m.attempts) + 1
		a.Passed = o.Failure == nil
		next.attempts = append(append(make([]model.GateAttempt, 0, len(m.attempts)+1), m.attempts...), a)
		switch {
		case o.Failure == nil:
			next.State = StateDone
		case len(next.attempts) >= m.MaxAttempts:
			next.last = o.Failure
			next.State = StateFailed
		default:
			next.last = o.Failure
			next.State = StateGeneratingFix
		}
	case StateGeneratingFix:
		next.State = StateApplyingFix
	case StateApplyingFix:
		next.State = StateRunningGate
	}
	return next
}

// Validator runs the gate once.
type Validator interface {
	Run(ctx context.Context) error
}

// Fixer turns a fix prompt into an applied corrective patch.
type Fixer interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Apply(ctx context.Context, text string) error
}

// Loop drives the gate, fix and re-run cycle.
type Loop struct {
	Gate        Validator
	Fixer       Fixer
	MaxAttempts int
	// Label names the change being fixed in the prompt.
	Label string
	Log   *zap.Logger
	// Observe, if set, is called after every transition.
	Observe func(Machine)
}

// Run runs the gate until it passes or the attempt budget is spent. Only
// *model.CommandFailedError is recovered from; any other error ends the loop.
func (l Loop) Run(ctx context.Context) (Machine, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := NewMachine(l.MaxAttempts)
	step := func(o Outcome) {
		m = Transition(m, o)
		log.Debug("gate loop transition", zap.String("state", string(m.State)), zap.Int("attempts", len(m.attempts)))
		if l.Observe != nil {
			l.Observe(m)
		}
	}

	var fixText string
	for !m.Terminal() {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		switch m.State {
		case StateRunningGate:
			log.Info("running standards gate", zap.Int("attempt", len(m.attempts)+1), zap.Int("max", m.MaxAttempts))
			err := l.Gate.Run(ctx)
			o := Outcome{Attempt: lastAttempt(l.Gate)}
			if err != nil {
				var cf *model.CommandFailedError
				if !errors.As(err, &cf) {
					return m, err
				}
				o.Failure = cf
				if o.Attempt.Command == "" {
					o.Attempt = model.GateAttempt{Command: cf.Command, ExitStatus: cf.ExitStatus, Output: cf.Output}
				}
			}
			step(o)
		case StateGeneratingFix:
			log.Warn("gate failed, generating fix patch", zap.String("cmd", m.last.Command))
			text, err := l.Fixer.Generate(ctx, FixPrompt(l.Label, m.last.Error()))
			if err != nil {
				return m, fmt.Errorf("failed to generate fix: %w", err)
			}
			fixText = text
			step(Outcome{})
		case StateApplyingFix:
			log.Info("applying fix patch")
			if err := l.Fixer.Apply(ctx, fixText); err != nil {
				return m, fmt.Errorf("failed to apply fix: %w", err)
			}
			step(Outcome{})
		}
	}

	if m.State == StateFailed {
		return m, &model.GateExhaustedError{Attempts: len(m.attempts), Last: m.last}
	}
	log.Info("standards gate passed", zap.Int("attempts", len(m.attempts)))
	return m, nil
}

// lastAttempt reads the attempt record from validators that keep one.
func lastAttempt(v Validator) model.GateAttempt {
	if g, ok := v.(interface{ LastAttempt() model.GateAttempt }); ok {
		return g.LastAttempt()
	}
	return model.GateAttempt{}
}
