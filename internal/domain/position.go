package domain

import (
	"math"
	"time"
)

// PositionState is the lifecycle state of an open trade.
type PositionState string

const (
	PositionOpen    PositionState = "OPEN"
	PositionClosing PositionState = "CLOSING"
	PositionClosed  PositionState = "CLOSED"
)

// Exit reasons, in the priority order they are evaluated.
const (
	ExitTakeProfit   = "take_profit"
	ExitStopLoss     = "stop_loss"
	ExitTrailingStop = "trailing_stop"
	ExitBreakeven    = "breakeven"
	ExitTimeLimit    = "time_exit"
	ExitGameOver     = "game_over"
	ExitPostPhase    = "post_phase"
	ExitEmergency    = "emergency_stop"
	ExitMaxHold      = "max_hold"
	ExitShutdown     = "shutdown"
)

// ExitRules is one strategy's exit ladder. Profit and loss values are
// fractions of the side-correct cost basis.
type ExitRules struct {
	TakeProfit    float64
	StopLoss      float64
	TimeExit      time.Duration
	Breakeven     time.Duration
	BreakevenTol  float64
	TrailActivate float64
	TrailStop     float64
	MaxHold       time.Duration // convergence only
	EmergencyStop float64       // convergence only
}

// TrailParams control trailing-peak maintenance, shared by strategies.
type TrailParams struct {
	PeakDecayInterval time.Duration
	PeakDecayRate     float64 // fraction shaved off the peak per interval
	MinConsecutive    int     // profitable reads required before the trail may fire
}

// Position is one confirmed holding, owned exclusively by the lifecycle
// engine from fill confirmation to close confirmation.
type Position struct {
	ID         string
	MarketID   string
	Side       Side
	Strategy   Strategy
	EntryPrice float64
	Quantity   float64
	OpenedAt   time.Time
	State      PositionState

	// Trailing-stop state.
	TrailArmed    bool
	Peak          float64 // decayed peak unrealized pct by executable price
	PeakAt        time.Time
	ConsecProfits int
}

// UnrealizedPct returns the gain fraction against the side-correct cost
// basis: (c-e)/e for a long, (e-c)/(1-e) for a short. The short basis is
// the complement because that is what a share actually cost.
func (p *Position) UnrealizedPct(current float64) float64 {
	if p.Side == SideShort {
		basis := 1 - p.EntryPrice
		if basis <= 0 {
			return 0
		}
		return (p.EntryPrice - current) / basis
	}
	if p.EntryPrice <= 0 {
		return 0
	}
	return (current - p.EntryPrice) / p.EntryPrice
}

// RealizedPnL returns the cash result of closing the full quantity at
// the given stated-outcome price.
func (p *Position) RealizedPnL(exitPrice float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - exitPrice) * p.Quantity
	}
	return (exitPrice - p.EntryPrice) * p.Quantity
}

// HoldDuration is how long the position has been open.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// updateTrail folds one executable-price reading into the trailing
// state. The peak decays by a fixed fraction per elapsed interval so a
// stale peak cannot keep the trail armed indefinitely.
func (p *Position) updateTrail(execPct float64, now time.Time, tp TrailParams) {
	if execPct > 0 {
		p.ConsecProfits++
	} else {
		p.ConsecProfits = 0
	}

	if p.TrailArmed && tp.PeakDecayInterval > 0 {
		for !p.PeakAt.IsZero() && now.Sub(p.PeakAt) >= tp.PeakDecayInterval {
			p.Peak *= 1 - tp.PeakDecayRate
			p.PeakAt = p.PeakAt.Add(tp.PeakDecayInterval)
		}
	}

	if execPct > p.Peak {
		p.Peak = execPct
		p.PeakAt = now
	}
}

// EvaluateExit runs the priority-ordered exit ladder for a standard
// (contrarian or momentum) position and returns the exit reason, or
// ok=false to keep holding.
//
// Price usage is deliberate and asymmetric: take-profit reads the
// executable price so a one-sided book move cannot fake a profit, while
// stop-loss reads the mid so transient spread noise cannot fake a loss.
// Breakeven and time exits re-check the executable price before
// committing; when realizing there would lose more than the stop-loss
// threshold, the stop-loss path runs instead.
func (p *Position) EvaluateExit(execPrice, mid float64, now time.Time, rules ExitRules, trail TrailParams) (string, bool) {
	execPct := p.UnrealizedPct(execPrice)
	midPct := p.UnrealizedPct(mid)

	if execPct >= rules.TakeProfit {
		return ExitTakeProfit, true
	}
	if midPct <= -rules.StopLoss {
		return ExitStopLoss, true
	}

	if !p.TrailArmed && execPct >= rules.TrailActivate {
		p.TrailArmed = true
		p.Peak = execPct
		p.PeakAt = now
	}
	p.updateTrail(execPct, now, trail)
	if p.TrailArmed && p.ConsecProfits >= trail.MinConsecutive &&
		p.Peak-execPct >= rules.TrailStop {
		return ExitTrailingStop, true
	}

	held := p.HoldDuration(now)
	if rules.Breakeven > 0 && held >= rules.Breakeven && math.Abs(midPct) <= rules.BreakevenTol {
		if execPct <= -rules.StopLoss {
			return ExitStopLoss, true
		}
		return ExitBreakeven, true
	}
	if rules.TimeExit > 0 && held >= rules.TimeExit {
		if execPct <= -rules.StopLoss {
			return ExitStopLoss, true
		}
		return ExitTimeLimit, true
	}
	return "", false
}

// EvaluateConvergenceExit runs the settlement-hold ladder: no TP, no
// trailing. Such a position rides to settlement and leaves only on an
// explicit game-over, a POST phase, a disaster-wide stop, or the
// absolute hold cap.
func (p *Position) EvaluateConvergenceExit(mid float64, phase Phase, gameOver bool, now time.Time, rules ExitRules) (string, bool) {
	if gameOver {
		return ExitGameOver, true
	}
	if phase == PhasePost {
		return ExitPostPhase, true
	}
	if p.UnrealizedPct(mid) <= -rules.EmergencyStop {
		return ExitEmergency, true
	}
	if rules.MaxHold > 0 && p.HoldDuration(now) >= rules.MaxHold {
		return ExitMaxHold, true
	}
	return "", false
}
