package ctl

import (
	"errors"
	"testing"

	"github.com/dragonreach/reach/internal/unit"
)

func TestParseLineVerbs(t *testing.T) {
	cases := map[string]Op{
		"list-units":                OpListUnits,
		"start hello.service":       OpStart,
		"stop hello.service":        OpStop,
		"restart a.service b.timer": OpRestart,
		"try-restart a.service":     OpTryRestart,
		"is-active":                 OpIsActive,
		"is-failed":                 OpIsFailed,
		"reboot":                    OpReboot,
		"daemon-reload":             OpDaemonReload,
	}
	for line, want := range cases {
		cmd, err := ParseLine(line)
		if err != nil {
			t.Errorf("ParseLine(%q): %v", line, err)
			continue
		}
		if cmd.Op != want {
			t.Errorf("ParseLine(%q).Op = %v, want %v", line, cmd.Op, want)
		}
	}
}

func TestParseLineArgs(t *testing.T) {
	cmd, err := ParseLine("start a.service b.service")
	if err != nil {
		t.Fatal(err)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "a.service" || cmd.Args[1] != "b.service" {
		t.Errorf("Args = %v", cmd.Args)
	}
}

func TestParseLinePatterns(t *testing.T) {
	cmd, err := ParseLine("list-units --type=service --state=active --all")
	if err != nil {
		t.Fatal(err)
	}
	if len(cmd.Patterns) != 3 {
		t.Fatalf("got %d patterns, want 3", len(cmd.Patterns))
	}
	if cmd.Patterns[0].Kind != PatternType || cmd.Patterns[0].Type != unit.KindService {
		t.Errorf("type pattern = %+v", cmd.Patterns[0])
	}
	if cmd.Patterns[1].Kind != PatternState || cmd.Patterns[1].State != unit.Active {
		t.Errorf("state pattern = %+v", cmd.Patterns[1])
	}
	if cmd.Patterns[2].Kind != PatternAll {
		t.Errorf("all pattern = %+v", cmd.Patterns[2])
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"frobnicate",
		"list-units --type=gizmo",
		"list-units --state=happy",
		"list-units --frobnicate",
	} {
		_, err := ParseLine(line)
		if !errors.Is(err, unit.ErrInvalidInput) {
			t.Errorf("ParseLine(%q) = %v, want ErrInvalidInput", line, err)
		}
	}
}
