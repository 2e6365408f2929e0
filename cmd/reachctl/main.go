// reachctl is the administrative client for reachd. It formats control
// commands and writes them to the daemon's control FIFO; replies land in
// the daemon log.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dragonreach/reach/internal/config"
	"github.com/dragonreach/reach/internal/ctl"
	"github.com/dragonreach/reach/internal/unit"
)

var (
	configPath  string
	typeFilter  string
	stateFilter string
	allUnits    bool
)

var rootCmd = &cobra.Command{
	Use:   "reachctl",
	Short: "Control the DragonReach service manager",
	Long: `reachctl sends control commands to a running reachd.

Commands are written to the control FIFO; reachd executes them on its
next supervisor iteration and logs the outcome.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to reach.toml (default /etc/reach/reach.toml)")

	for _, verb := range []struct {
		use, short string
		needsUnits bool
	}{
		{"start", "Start units", true},
		{"stop", "Stop units", true},
		{"restart", "Restart units", true},
		{"try-restart", "Restart units that are active", true},
		{"reboot", "Reboot the system", false},
	} {
		v := verb
		c := &cobra.Command{
			Use:   v.use,
			Short: v.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if v.needsUnits && len(args) == 0 {
					return fmt.Errorf("%s needs at least one unit name", v.use)
				}
				return send(append([]string{v.use}, args...))
			},
		}
		rootCmd.AddCommand(c)
	}

	for _, verb := range []struct{ use, short string }{
		{"list-units", "List loaded units"},
		{"is-active", "List units that are active"},
		{"is-failed", "List units that have failed"},
	} {
		v := verb
		c := &cobra.Command{
			Use:   v.use,
			Short: v.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				fields := []string{v.use}
				if typeFilter != "" {
					fields = append(fields, "--type="+typeFilter)
				}
				if stateFilter != "" {
					fields = append(fields, "--state="+stateFilter)
				}
				if allUnits {
					fields = append(fields, "--all")
				}
				return send(fields)
			},
		}
		c.Flags().StringVarP(&typeFilter, "type", "t", "", "filter by unit type")
		c.Flags().StringVar(&stateFilter, "state", "", "filter by unit state")
		c.Flags().BoolVarP(&allUnits, "all", "a", false, "match all units (inactive units are listed with or without it)")
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(listUnitFilesCmd)
}

// send writes one command line to the control FIFO.
func send(fields []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	line := strings.Join(fields, " ")
	if err := ctl.Send(cfg.CtlPath, line); err != nil {
		return err
	}
	fmt.Printf("sent: %s\n", line)
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

var listUnitFilesCmd = &cobra.Command{
	Use:   "list-unit-files",
	Short: "List unit files in the unit directory",
	Long: `List the unit files reachd would load.

This reads the unit directory locally and does not need a running
daemon.`,
	RunE: runListUnitFiles,
}

func runListUnitFiles(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(cfg.UnitDir)
	if err != nil {
		return fmt.Errorf("reading unit directory %s: %w", cfg.UnitDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-40s %s", "UNIT FILE", "TYPE")))
	for _, name := range names {
		kind := unit.KindFromName(name)
		line := fmt.Sprintf("%-40s %s", name, kind)
		if kind == unit.KindUnknown {
			fmt.Println(mutedStyle.Render(line))
			continue
		}
		fmt.Println(line)
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("\n%d unit files listed.", len(names))))
	return nil
}
