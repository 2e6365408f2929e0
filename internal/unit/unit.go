// Package unit defines the unit model: typed unit records, their relation
// sets, and the enums shared by the registry, executor, and timer engine.
//
// Units are plain data. All cross-references between units are ID values
// resolved through the registry at use time; no unit holds a pointer to
// another unit.
package unit

import "strings"

// ID identifies a loaded unit. IDs are monotonically increasing positive
// integers assigned by the registry; 0 means "none".
type ID uint64

// None is the zero ID, reserved as "no unit".
const None ID = 0

// Kind classifies a unit. Only Service, Target, and Timer have behavior;
// the remaining kinds are recognized for classification only.
type Kind int

const (
	KindUnknown Kind = iota
	KindService
	KindTarget
	KindTimer
	KindAutomount
	KindDevice
	KindMount
	KindPath
	KindScope
	KindSlice
	KindSocket
	KindSwap
)

// KindFromName classifies a unit file name by its suffix.
func KindFromName(name string) Kind {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return KindUnknown
	}
	switch name[idx+1:] {
	case "service":
		return KindService
	case "target":
		return KindTarget
	case "timer":
		return KindTimer
	case "automount":
		return KindAutomount
	case "device":
		return KindDevice
	case "mount":
		return KindMount
	case "path":
		return KindPath
	case "scope":
		return KindScope
	case "slice":
		return KindSlice
	case "socket":
		return KindSocket
	case "swap":
		return KindSwap
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindTarget:
		return "target"
	case KindTimer:
		return "timer"
	case KindAutomount:
		return "automount"
	case KindDevice:
		return "device"
	case KindMount:
		return "mount"
	case KindPath:
		return "path"
	case KindScope:
		return "scope"
	case KindSlice:
		return "slice"
	case KindSocket:
		return "socket"
	case KindSwap:
		return "swap"
	}
	return "unknown"
}

// State is the unit's activation state.
type State int

const (
	Inactive State = iota
	Activating
	Active
	Deactivating
	Failed
	Reloading
	Maintenance
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Activating:
		return "activating"
	case Deactivating:
		return "deactivating"
	case Failed:
		return "failed"
	case Reloading:
		return "reloading"
	case Maintenance:
		return "maintenance"
	}
	return "inactive"
}

// StateFromString parses the lowercase state names produced by String.
func StateFromString(s string) (State, bool) {
	switch s {
	case "inactive":
		return Inactive, true
	case "activating":
		return Activating, true
	case "active":
		return Active, true
	case "deactivating":
		return Deactivating, true
	case "failed":
		return Failed, true
	case "reloading":
		return Reloading, true
	case "maintenance":
		return Maintenance, true
	}
	return Inactive, false
}

// SubState is a finer-grained state used for reporting only.
type SubState int

const (
	SubUnknown SubState = iota
	SubRunning
	SubWaiting
	SubStartPre
	SubStartPost
	SubDead
	SubAutoRestart
	SubFailed
)

func (s SubState) String() string {
	switch s {
	case SubRunning:
		return "running"
	case SubWaiting:
		return "waiting"
	case SubStartPre:
		return "start-pre"
	case SubStartPost:
		return "start-post"
	case SubDead:
		return "dead"
	case SubAutoRestart:
		return "auto-restart"
	case SubFailed:
		return "failed"
	}
	return "unknown"
}

// LoadState reports how the unit file was loaded; reporting only.
type LoadState int

const (
	Loaded LoadState = iota
	NotFound
	LoadError
	Masked
)

func (s LoadState) String() string {
	switch s {
	case NotFound:
		return "not-found"
	case LoadError:
		return "error"
	case Masked:
		return "masked"
	}
	return "loaded"
}

// IDSet is a duplicate-free collection of unit IDs. Order is not
// significant; Add keeps insertion order for deterministic iteration.
type IDSet []ID

// Add inserts id unless already present.
func (s *IDSet) Add(id ID) {
	if s.Contains(id) {
		return
	}
	*s = append(*s, id)
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id ID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Relations holds the unit's relation sets. After post-load normalization
// (registry.InitRelations) Before has been folded into the counterpart
// units' After sets, and BindsTo/PartOf have been mirrored into the
// counterpart units' BeBindedBy sets.
type Relations struct {
	Requires   IDSet
	Wants      IDSet
	After      IDSet
	Before     IDSet
	BindsTo    IDSet
	PartOf     IDSet
	OnFailure  IDSet
	Conflicts  IDSet
	BeBindedBy IDSet
}

// Base carries the fields every unit has.
type Base struct {
	ID          ID
	Name        string
	Description string
	Kind        Kind
	State       State
	SubState    SubState
	LoadState   LoadState
	Relations   Relations

	// Install section, recorded only.
	WantedBy   []string
	RequiredBy []string
}

// Unit is a loaded unit record: the common header plus the payload for its
// kind. Exactly one of Service/Timer is non-nil for those kinds; targets
// carry only the base.
type Unit struct {
	Base
	Service *ServicePart
	Timer   *TimerPart
}
