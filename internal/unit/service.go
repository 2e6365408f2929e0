package unit

import "time"

// ServiceType is the service startup model. Only Simple and Idle spawn;
// Forking, OneShot, Dbus, and Notify are accepted and treated as no-ops.
type ServiceType int

const (
	Simple ServiceType = iota
	Forking
	OneShot
	Dbus
	Notify
	Idle
)

func (t ServiceType) String() string {
	switch t {
	case Forking:
		return "forking"
	case OneShot:
		return "oneshot"
	case Dbus:
		return "dbus"
	case Notify:
		return "notify"
	case Idle:
		return "idle"
	}
	return "simple"
}

// ServiceTypeFromString parses a Type= value.
func ServiceTypeFromString(s string) (ServiceType, bool) {
	switch s {
	case "simple", "":
		return Simple, true
	case "forking":
		return Forking, true
	case "oneshot":
		return OneShot, true
	case "dbus":
		return Dbus, true
	case "notify":
		return Notify, true
	case "idle":
		return Idle, true
	}
	return Simple, false
}

// ExitStatus classifies how a service's main process ended.
type ExitStatus int

const (
	ExitSuccess ExitStatus = iota
	ExitFailure
	ExitAbnormal
	ExitAbort
	ExitWatchdog
)

func (s ExitStatus) String() string {
	switch s {
	case ExitFailure:
		return "failure"
	case ExitAbnormal:
		return "abnormal"
	case ExitAbort:
		return "abort"
	case ExitWatchdog:
		return "watchdog"
	}
	return "success"
}

// ExitStatusFromCode maps a child exit code: 0 is success, anything else
// abnormal. ExitFailure is produced only by the executor when a start
// fails; no path produces ExitAbort or ExitWatchdog.
func ExitStatusFromCode(code int) ExitStatus {
	if code == 0 {
		return ExitSuccess
	}
	return ExitAbnormal
}

// RestartPolicy decides whether a service restarts after its main process
// ends with a given status.
type RestartPolicy int

const (
	RestartNo RestartPolicy = iota
	RestartAlways
	RestartOnSuccess
	RestartOnFailure
	RestartOnAbnormal
	RestartOnAbort
	RestartOnWatchdog
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartAlways:
		return "always"
	case RestartOnSuccess:
		return "on-success"
	case RestartOnFailure:
		return "on-failure"
	case RestartOnAbnormal:
		return "on-abnormal"
	case RestartOnAbort:
		return "on-abort"
	case RestartOnWatchdog:
		return "on-watchdog"
	}
	return "no"
}

// RestartPolicyFromString parses a Restart= value.
func RestartPolicyFromString(s string) (RestartPolicy, bool) {
	switch s {
	case "no", "":
		return RestartNo, true
	case "always":
		return RestartAlways, true
	case "on-success":
		return RestartOnSuccess, true
	case "on-failure":
		return RestartOnFailure, true
	case "on-abnormal":
		return RestartOnAbnormal, true
	case "on-abort":
		return RestartOnAbort, true
	case "on-watchdog":
		return RestartOnWatchdog, true
	}
	return RestartNo, false
}

// Matches reports whether the policy fires for the given exit status.
func (p RestartPolicy) Matches(status ExitStatus) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnSuccess:
		return status == ExitSuccess
	case RestartOnFailure:
		// Unclean exits count as failures: both the engine-internal
		// failure status and an abnormal child exit fire this policy.
		return status == ExitFailure || status == ExitAbnormal
	case RestartOnAbnormal:
		return status == ExitAbnormal
	case RestartOnAbort:
		return status == ExitAbort
	case RestartOnWatchdog:
		return status == ExitWatchdog
	}
	return false
}

// MountFlag is the mount propagation mode for the service's namespace.
type MountFlag int

const (
	MountShared MountFlag = iota
	MountSlave
	MountPrivate
)

// EnvVar is one Environment= entry. Order is preserved because later
// assignments override earlier ones at spawn time.
type EnvVar struct {
	Key   string
	Value string
}

// CmdTask is one command line attached to a service: the main ExecStart
// or an auxiliary pre/post/reload/stop command. Pid is set while a
// spawned (asynchronous) instance of the command is live.
type CmdTask struct {
	Path string
	Args []string
	// Ignore tolerates failure: a non-zero exit or spawn error of this
	// command does not fail the operation that ran it.
	Ignore bool
	Dir    string
	Env    []EnvVar
	Pid    int
}

// ServicePart is the payload of a Service unit.
type ServicePart struct {
	Type            ServiceType
	RemainAfterExit bool

	ExecStartPre  []CmdTask
	ExecStart     CmdTask
	ExecStartPost []CmdTask
	ExecReload    []CmdTask
	ExecStop      []CmdTask
	ExecStopPost  []CmdTask

	Restart         RestartPolicy
	RestartSec      time.Duration
	TimeoutStartSec time.Duration
	TimeoutStopSec  time.Duration

	Environment      []EnvVar
	WorkingDirectory string
	User             string
	Group            string
	Nice             int
	MountFlags       MountFlag
}
