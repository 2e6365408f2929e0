// Package unitfile loads unit files from the unit directory into the
// registry.
//
// Lexing is delegated to go-systemd's unit-option deserializer; this
// package interprets the recognized [Unit], [Service], [Timer], and
// [Install] options into validated unit records. Relation values are
// unit names and are resolved to ids, recursively loading referenced
// units that are not in the registry yet.
package unitfile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sdunit "github.com/coreos/go-systemd/v22/unit"

	"github.com/dragonreach/reach/internal/registry"
	"github.com/dragonreach/reach/internal/unit"
)

// Loader parses unit files under Dir into Reg.
type Loader struct {
	dir string
	reg *registry.Registry
	log *log.Logger
}

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string, reg *registry.Registry, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Loader{dir: dir, reg: reg, log: logger}
}

// Load parses the unit file with the given basename and installs it.
// Loading an already-loaded name returns the existing id. The record is
// inserted before its relations resolve, so mutually-referencing unit
// files load without recursing forever; any resulting ordering cycle is
// caught by the dependency resolver at start time.
func (l *Loader) Load(name string) (unit.ID, error) {
	if id := l.reg.LookupName(name); id != unit.None {
		return id, nil
	}

	kind := unit.KindFromName(name)
	switch kind {
	case unit.KindService, unit.KindTarget, unit.KindTimer:
	case unit.KindUnknown:
		return unit.None, fmt.Errorf("%s: unrecognized unit suffix: %w", name, unit.ErrInvalidFileFormat)
	default:
		return unit.None, fmt.Errorf("%s: unit type %s has no behavior: %w", name, kind, unit.ErrInvalidFileFormat)
	}

	path := filepath.Join(l.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return unit.None, fmt.Errorf("%s: %v: %w", name, err, unit.ErrFileNotFound)
	}
	opts, err := sdunit.Deserialize(f)
	f.Close()
	if err != nil {
		return unit.None, fmt.Errorf("%s: %v: %w", name, err, unit.ErrInvalidFileFormat)
	}

	u := &unit.Unit{}
	u.Name = name
	u.Kind = kind
	switch kind {
	case unit.KindService:
		u.Service = &unit.ServicePart{WorkingDirectory: "/"}
	case unit.KindTimer:
		u.Timer = &unit.TimerPart{
			AccuracySec:       unit.DefaultAccuracy,
			RemainAfterElapse: true,
		}
	}

	id := l.reg.Insert(u)

	for _, opt := range opts {
		var err error
		switch opt.Section {
		case "Unit":
			err = l.setUnitOption(u, opt.Name, opt.Value)
		case "Install":
			err = setInstallOption(u, opt.Name, opt.Value)
		case "Service":
			if u.Service == nil {
				err = fmt.Errorf("[Service] section in non-service unit")
			} else {
				err = l.setServiceOption(u.Service, opt.Name, opt.Value)
			}
		case "Timer":
			if u.Timer == nil {
				err = fmt.Errorf("[Timer] section in non-timer unit")
			} else {
				err = l.setTimerOption(u.Timer, opt.Name, opt.Value)
			}
		default:
			// Unknown sections are skipped, matching the tolerant
			// handling of unknown keys below.
			continue
		}
		if err != nil {
			// Back the half-loaded record out so a later load retries
			// from the file.
			l.reg.Remove(id)
			return unit.None, fmt.Errorf("%s: %s=%s: %v: %w", name, opt.Name, opt.Value, err, unit.ErrInvalidFileFormat)
		}
	}

	if u.Kind == unit.KindService {
		resolveTasks(u.Service)
	}

	if u.Kind == unit.KindTimer && u.Timer.Unit == unit.None {
		// Default target: the service of the same basename.
		base := strings.TrimSuffix(name, ".timer")
		tid, err := l.resolveRef(base + ".service")
		if err != nil {
			l.log.Printf("%s: no target unit: %v", name, err)
		} else {
			u.Timer.Unit = tid
		}
	}

	return id, nil
}

// resolveTasks stamps the service-wide working directory and environment
// onto every command so each CmdTask carries its resolved cwd and env.
func resolveTasks(s *unit.ServicePart) {
	lists := [][]unit.CmdTask{
		s.ExecStartPre, s.ExecStartPost, s.ExecReload, s.ExecStop, s.ExecStopPost,
	}
	for _, list := range lists {
		for i := range list {
			list[i].Dir = s.WorkingDirectory
			list[i].Env = s.Environment
		}
	}
	s.ExecStart.Dir = s.WorkingDirectory
	s.ExecStart.Env = s.Environment
}

// resolveRef maps a referenced unit name to an id, loading it if needed.
func (l *Loader) resolveRef(name string) (unit.ID, error) {
	if id := l.reg.LookupName(name); id != unit.None {
		return id, nil
	}
	return l.Load(name)
}

// addRefs resolves a space-separated unit-name list into the set.
func (l *Loader) addRefs(set *unit.IDSet, value string) error {
	for _, name := range strings.Fields(value) {
		id, err := l.resolveRef(name)
		if err != nil {
			return err
		}
		set.Add(id)
	}
	return nil
}

func (l *Loader) setUnitOption(u *unit.Unit, name, value string) error {
	r := &u.Relations
	switch name {
	case "Description":
		u.Description = value
		return nil
	case "After":
		return l.addRefs(&r.After, value)
	case "Before":
		return l.addRefs(&r.Before, value)
	case "Requires":
		return l.addRefs(&r.Requires, value)
	case "Wants":
		return l.addRefs(&r.Wants, value)
	case "BindsTo":
		return l.addRefs(&r.BindsTo, value)
	case "PartOf":
		return l.addRefs(&r.PartOf, value)
	case "OnFailure":
		return l.addRefs(&r.OnFailure, value)
	case "Conflicts":
		return l.addRefs(&r.Conflicts, value)
	}
	// Unknown [Unit] keys are tolerated.
	return nil
}

func setInstallOption(u *unit.Unit, name, value string) error {
	switch name {
	case "WantedBy":
		u.WantedBy = append(u.WantedBy, strings.Fields(value)...)
	case "RequiredBy":
		u.RequiredBy = append(u.RequiredBy, strings.Fields(value)...)
	}
	return nil
}

func (l *Loader) setServiceOption(s *unit.ServicePart, name, value string) error {
	switch name {
	case "Type":
		t, ok := unit.ServiceTypeFromString(value)
		if !ok {
			return fmt.Errorf("unknown service type")
		}
		s.Type = t
	case "RemainAfterExit":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		s.RemainAfterExit = b
	case "ExecStart":
		if s.ExecStart.Path != "" {
			return fmt.Errorf("duplicate ExecStart")
		}
		t, err := parseCmd(value)
		if err != nil {
			return err
		}
		s.ExecStart = t
	case "ExecStartPre":
		return appendCmd(&s.ExecStartPre, value)
	case "ExecStartPost":
		return appendCmd(&s.ExecStartPost, value)
	case "ExecReload":
		return appendCmd(&s.ExecReload, value)
	case "ExecStop":
		return appendCmd(&s.ExecStop, value)
	case "ExecStopPost":
		return appendCmd(&s.ExecStopPost, value)
	case "Restart":
		p, ok := unit.RestartPolicyFromString(value)
		if !ok {
			return fmt.Errorf("unknown restart policy")
		}
		s.Restart = p
	case "RestartSec":
		d, err := parseSpan(value)
		if err != nil {
			return err
		}
		s.RestartSec = d
	case "TimeoutStartSec":
		d, err := parseSpan(value)
		if err != nil {
			return err
		}
		s.TimeoutStartSec = d
	case "TimeoutStopSec":
		d, err := parseSpan(value)
		if err != nil {
			return err
		}
		s.TimeoutStopSec = d
	case "Environment":
		vars, err := parseEnv(value)
		if err != nil {
			return err
		}
		s.Environment = append(s.Environment, vars...)
	case "WorkingDirectory":
		s.WorkingDirectory = value
	case "User":
		s.User = value
	case "Group":
		s.Group = value
	case "Nice":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad nice value")
		}
		s.Nice = n
	case "MountFlags":
		switch value {
		case "shared":
			s.MountFlags = unit.MountShared
		case "slave":
			s.MountFlags = unit.MountSlave
		case "private":
			s.MountFlags = unit.MountPrivate
		default:
			return fmt.Errorf("unknown mount flag")
		}
	}
	return nil
}

func (l *Loader) setTimerOption(p *unit.TimerPart, name, value string) error {
	switch name {
	case "OnActiveSec":
		return setSpan(&p.OnActiveSec, value)
	case "OnBootSec":
		return setSpan(&p.OnBootSec, value)
	case "OnStartupSec":
		return setSpan(&p.OnStartupSec, value)
	case "OnUnitActiveSec":
		return setSpan(&p.OnUnitActiveSec, value)
	case "OnUnitInactiveSec":
		return setSpan(&p.OnUnitInactiveSec, value)
	case "AccuracySec":
		return setSpan(&p.AccuracySec, value)
	case "Unit":
		id, err := l.resolveRef(value)
		if err != nil {
			return err
		}
		p.Unit = id
	case "Persistent":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		p.Persistent = b
	case "WakeSystem":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		p.WakeSystem = b
	case "RemainAfterElapse":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		p.RemainAfterElapse = b
	}
	return nil
}
