package unit

import "testing"

func TestExitStatusFromCode(t *testing.T) {
	if got := ExitStatusFromCode(0); got != ExitSuccess {
		t.Errorf("code 0: got %v, want success", got)
	}
	for _, code := range []int{1, 2, 127, 255} {
		if got := ExitStatusFromCode(code); got != ExitAbnormal {
			t.Errorf("code %d: got %v, want abnormal", code, got)
		}
	}
}

func TestRestartPolicyMatches(t *testing.T) {
	statuses := []ExitStatus{ExitSuccess, ExitFailure, ExitAbnormal, ExitAbort, ExitWatchdog}

	// One row per policy: which statuses fire a restart.
	want := map[RestartPolicy]map[ExitStatus]bool{
		RestartNo:         {},
		RestartAlways:     {ExitSuccess: true, ExitFailure: true, ExitAbnormal: true, ExitAbort: true, ExitWatchdog: true},
		RestartOnSuccess:  {ExitSuccess: true},
		RestartOnFailure:  {ExitFailure: true, ExitAbnormal: true},
		RestartOnAbnormal: {ExitAbnormal: true},
		RestartOnAbort:    {ExitAbort: true},
		RestartOnWatchdog: {ExitWatchdog: true},
	}

	for policy, fires := range want {
		for _, status := range statuses {
			if got := policy.Matches(status); got != fires[status] {
				t.Errorf("%v.Matches(%v) = %v, want %v", policy, status, got, fires[status])
			}
		}
	}
}

func TestRestartPolicyFromString(t *testing.T) {
	cases := map[string]RestartPolicy{
		"no":          RestartNo,
		"":            RestartNo,
		"always":      RestartAlways,
		"on-success":  RestartOnSuccess,
		"on-failure":  RestartOnFailure,
		"on-abnormal": RestartOnAbnormal,
		"on-abort":    RestartOnAbort,
		"on-watchdog": RestartOnWatchdog,
	}
	for in, want := range cases {
		got, ok := RestartPolicyFromString(in)
		if !ok || got != want {
			t.Errorf("RestartPolicyFromString(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := RestartPolicyFromString("sometimes"); ok {
		t.Error("bogus policy accepted")
	}
}

func TestServiceTypeFromString(t *testing.T) {
	for in, want := range map[string]ServiceType{
		"simple": Simple, "": Simple, "forking": Forking, "oneshot": OneShot,
		"dbus": Dbus, "notify": Notify, "idle": Idle,
	} {
		got, ok := ServiceTypeFromString(in)
		if !ok || got != want {
			t.Errorf("ServiceTypeFromString(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ServiceTypeFromString("eager"); ok {
		t.Error("bogus type accepted")
	}
}
