package script

import (
	"context"
	"fmt"
)

// Policy decides whether a script is eligible to run.
type Policy struct {
	detector             *Detector
	history              History
	runAllAnyTimeScripts bool
}

// NewPolicy creates a Policy. runAllAnyTimeScripts forces every script that
// is not run-once to run.
func NewPolicy(detector *Detector, history History, runAllAnyTimeScripts bool) *Policy {
	return &Policy{detector: detector, history: history, runAllAnyTimeScripts: runAllAnyTimeScripts}
}

// ShouldRun applies, in order: every-time scripts run; with
// runAllAnyTimeScripts every script that is not run-once runs; a script
// that already ran unchanged is skipped; anything else runs.
func (p *Policy) ShouldRun(ctx context.Context, s Script) (bool, error) {
	if IsEveryTime(s.Name, s.RunEveryTime) {
		return true, nil
	}

	if p.runAllAnyTimeScripts && !s.RunOnce {
		return true, nil
	}

	ran, err := p.history.HasRunScriptAlready(ctx, s.Name)
	if err != nil {
		return false, fmt.Errorf("checking whether %s ran: %w", s.Name, err)
	}

	if !ran {
		return true, nil
	}

	changed, err := p.detector.Changed(ctx, s.Name, s.Text)
	if err != nil {
		return false, err
	}

	return changed, nil
}
