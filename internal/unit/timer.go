package unit

import (
	"sort"
	"time"
)

// TimerAttr tags the origin of a TimerVal.
type TimerAttr int

const (
	OnActiveSec TimerAttr = iota
	OnBootSec
	OnStartupSec
	OnUnitActiveSec
	OnUnitInactiveSec
)

func (a TimerAttr) String() string {
	switch a {
	case OnBootSec:
		return "OnBootSec"
	case OnStartupSec:
		return "OnStartupSec"
	case OnUnitActiveSec:
		return "OnUnitActiveSec"
	case OnUnitInactiveSec:
		return "OnUnitInactiveSec"
	}
	return "OnActiveSec"
}

// TimerVal is one armed trigger of a timer unit. NextElapse zero means the
// trigger currently has no scheduled fire time.
type TimerVal struct {
	Attr       TimerAttr
	Disabled   bool
	Duration   time.Duration
	NextElapse time.Time
}

// DefaultAccuracy is the trigger precision when AccuracySec is unset.
const DefaultAccuracy = 60 * time.Second

// TimerPart is the payload of a Timer unit.
type TimerPart struct {
	OnActiveSec       time.Duration
	OnBootSec         time.Duration
	OnStartupSec      time.Duration
	OnUnitActiveSec   time.Duration
	OnUnitInactiveSec time.Duration

	AccuracySec time.Duration

	// Unit is the target to activate on fire. The loader defaults it to
	// the service of the same basename.
	Unit ID

	Persistent        bool
	WakeSystem        bool
	RemainAfterElapse bool

	// Values is the mutable set of armed triggers; NextFire caches the
	// earliest armable one (zero means "never").
	Values      []TimerVal
	NextFire    time.Time
	LastTrigger time.Time
}

// Arm populates Values from the configured durations relative to now.
// targetRunning gates the OnUnitActiveSec trigger: it only gets a fire
// time if the target is already running, and starts disabled otherwise.
// OnUnitInactiveSec always starts disabled. ChangeStage clears the
// disabled flag of both at the first observed transition; an observed
// start gives OnUnitActiveSec its fire time, an observed exit gives
// OnUnitInactiveSec its fire time.
func (p *TimerPart) Arm(now time.Time, targetRunning bool) {
	p.Values = p.Values[:0]
	if p.OnActiveSec != 0 {
		p.Values = append(p.Values, TimerVal{
			Attr:       OnActiveSec,
			Duration:   p.OnActiveSec,
			NextElapse: now.Add(p.OnActiveSec),
		})
	}
	if p.OnBootSec != 0 {
		p.Values = append(p.Values, TimerVal{
			Attr:       OnBootSec,
			Duration:   p.OnBootSec,
			NextElapse: now.Add(p.OnBootSec),
		})
	}
	if p.OnStartupSec != 0 {
		p.Values = append(p.Values, TimerVal{
			Attr:       OnStartupSec,
			Duration:   p.OnStartupSec,
			NextElapse: now.Add(p.OnStartupSec),
		})
	}
	if p.OnUnitActiveSec != 0 {
		v := TimerVal{
			Attr:     OnUnitActiveSec,
			Duration: p.OnUnitActiveSec,
			Disabled: !targetRunning,
		}
		if targetRunning {
			v.NextElapse = now.Add(p.OnUnitActiveSec)
		}
		p.Values = append(p.Values, v)
	}
	if p.OnUnitInactiveSec != 0 {
		p.Values = append(p.Values, TimerVal{
			Attr:     OnUnitInactiveSec,
			Duration: p.OnUnitInactiveSec,
			Disabled: true,
		})
	}
	p.UpdateNextTrigger(now)
}

// ChangeStage re-arms the transition-gated triggers. Called with
// started=true when the target unit was observed starting, started=false
// when it was observed exiting.
func (p *TimerPart) ChangeStage(now time.Time, started bool) {
	for i := range p.Values {
		v := &p.Values[i]
		switch v.Attr {
		case OnUnitActiveSec:
			v.Disabled = false
			if started {
				v.NextElapse = now.Add(v.Duration)
			}
		case OnUnitInactiveSec:
			v.Disabled = false
			if !started {
				v.NextElapse = now.Add(v.Duration)
			}
		}
	}
}

// UpdateNextTrigger consumes already-fired one-shot values, sorts the
// remainder by fire time (unset last), and recomputes NextFire: the
// smallest non-disabled scheduled time. NextFire is zero when nothing is
// currently armable.
func (p *TimerPart) UpdateNextTrigger(now time.Time) {
	kept := p.Values[:0]
	for _, v := range p.Values {
		consumable := v.Attr == OnActiveSec || v.Attr == OnBootSec || v.Attr == OnStartupSec
		if consumable && !v.NextElapse.IsZero() && !v.NextElapse.After(now) {
			// One-shot value already fired; consume it.
			continue
		}
		kept = append(kept, v)
	}
	p.Values = kept

	sort.SliceStable(p.Values, func(i, j int) bool {
		a, b := p.Values[i].NextElapse, p.Values[j].NextElapse
		if a.IsZero() {
			return false
		}
		if b.IsZero() {
			return true
		}
		return a.Before(b)
	})

	p.NextFire = time.Time{}
	for _, v := range p.Values {
		if v.Disabled || v.NextElapse.IsZero() {
			continue
		}
		p.NextFire = v.NextElapse
		break
	}
}
