package unitfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dragonreach/reach/internal/unit"
)

// parseBool accepts the systemd boolean spellings.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "on", "1":
		return true, nil
	case "no", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("bad boolean %q", s)
}

// spanUnits maps systemd time-span suffixes onto Go duration syntax.
var spanUnits = strings.NewReplacer(
	"usec", "us",
	"msec", "ms",
	"seconds", "s",
	"second", "s",
	"sec", "s",
	"minutes", "m",
	"minute", "m",
	"min", "m",
	"hours", "h",
	"hour", "h",
	"hr", "h",
)

// parseSpan parses a systemd time span: "50ms", "5s", "1min 30s", or a
// bare number of seconds. Zero means "unset" to the callers.
func parseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time span")
	}
	var total time.Duration
	for _, field := range strings.Fields(s) {
		if n, err := strconv.ParseFloat(field, 64); err == nil {
			total += time.Duration(n * float64(time.Second))
			continue
		}
		d, err := time.ParseDuration(spanUnits.Replace(field))
		if err != nil {
			return 0, fmt.Errorf("bad time span %q", s)
		}
		total += d
	}
	return total, nil
}

func setSpan(dst *time.Duration, value string) error {
	d, err := parseSpan(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseCmd splits one Exec line into a command task. A leading "-" marks
// the command's failures as ignorable. The binary path must be absolute.
func parseCmd(value string) (unit.CmdTask, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return unit.CmdTask{}, fmt.Errorf("empty command")
	}
	t := unit.CmdTask{}
	path := fields[0]
	if strings.HasPrefix(path, "-") {
		t.Ignore = true
		path = path[1:]
	}
	if !strings.HasPrefix(path, "/") {
		return unit.CmdTask{}, fmt.Errorf("command path %q is not absolute", path)
	}
	t.Path = path
	t.Args = fields[1:]
	return t, nil
}

func appendCmd(dst *[]unit.CmdTask, value string) error {
	t, err := parseCmd(value)
	if err != nil {
		return err
	}
	*dst = append(*dst, t)
	return nil
}

// parseEnv parses an Environment= value: one or more KEY=VALUE
// assignments, optionally double-quoted.
func parseEnv(value string) ([]unit.EnvVar, error) {
	var out []unit.EnvVar
	for _, field := range strings.Fields(value) {
		field = strings.Trim(field, `"`)
		key, val, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad environment assignment %q", field)
		}
		out = append(out, unit.EnvVar{Key: key, Value: val})
	}
	return out, nil
}
