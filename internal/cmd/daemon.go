package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/dragonreach/reach/internal/config"
	"github.com/dragonreach/reach/internal/engine"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start reachd in the background",
	Long: `Start the service manager in the background.

The daemon runs until stopped with 'reachd stop'.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running reachd",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reachd status",
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the reachd log",
	RunE:  runLogs,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run reachd in the foreground",
	RunE:  runForeground,
}

var (
	logLines  int
	logFollow bool
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(runCmd)

	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "Follow log output")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func runForeground(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	return e.Run()
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid, err := engine.IsRunning(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if running {
		return fmt.Errorf("reachd already running (PID %d)", pid)
	}

	// 'reachd run' is the actual daemon process.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}
	daemonArgs := []string{"run"}
	if configPath != "" {
		daemonArgs = append(daemonArgs, "--config", configPath)
	}
	daemon := exec.Command(exe, daemonArgs...)
	daemon.Stdin = nil
	daemon.Stdout = nil
	daemon.Stderr = nil
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("starting reachd: %w", err)
	}

	// Give it a moment to come up and take the lock.
	time.Sleep(200 * time.Millisecond)

	running, pid, err = engine.IsRunning(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if !running {
		return fmt.Errorf("reachd failed to start (check 'reachd logs')")
	}
	if pid != daemon.Process.Pid {
		// A concurrent start won the flock race; that instance is fine.
		fmt.Printf("reachd already running (PID %d)\n", pid)
		return nil
	}

	fmt.Printf("reachd started (PID %d, v%s)\n", pid, Version)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	running, pid, err := engine.IsRunning(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if !running {
		return fmt.Errorf("reachd is not running")
	}
	if err := engine.StopDaemon(cfg.PidFile); err != nil {
		return fmt.Errorf("stopping reachd: %w", err)
	}
	fmt.Printf("reachd stopped (was PID %d)\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	running, pid, err := engine.IsRunning(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if running {
		fmt.Printf("reachd running (PID %d, v%s)\n", pid, Version)
		fmt.Printf("  Units:   %s\n", cfg.UnitDir)
		fmt.Printf("  Control: %s\n", cfg.CtlPath)
		fmt.Printf("  Log:     %s\n", cfg.LogFile)
	} else {
		fmt.Println("reachd not running")
		fmt.Println()
		fmt.Println("  Start with: reachd start")
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.LogFile); os.IsNotExist(err) {
		return fmt.Errorf("no log file found at %s", cfg.LogFile)
	}

	tailArgs := []string{"-n", fmt.Sprint(logLines)}
	if logFollow {
		tailArgs = append(tailArgs, "-f")
	}
	tailArgs = append(tailArgs, cfg.LogFile)
	tail := exec.Command("tail", tailArgs...)
	tail.Stdout = os.Stdout
	tail.Stderr = os.Stderr
	return tail.Run()
}
