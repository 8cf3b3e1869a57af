package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	daemonServeUnitName      = "gather-serve.service"
	daemonFetchUnitName      = "gather-fetch.service"
	daemonFetchTimerUnitName = "gather-fetch.timer"
	systemdUnitDir           = "/etc/systemd/system"
)

var daemonUnitNames = []string{
	daemonServeUnitName,
	daemonFetchTimerUnitName,
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage()
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start":
		return runDaemonServiceAction("start", args[1:], true)
	case "stop":
		return runDaemonServiceAction("stop", args[1:], true)
	case "restart":
		return runDaemonServiceAction("restart", args[1:], true)
	case "status":
		return runDaemonServiceAction("status", args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage()
		return 2
	}
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}

	userName := fs.String("user", defaultUser, "Run services as this Linux user")
	port := fs.Int("port", 8090, "Port for gather-serve")
	fetchInterval := fs.String("fetch-interval", "hourly", "systemd OnCalendar expression for periodic fetch")
	workDir := fs.String("work-dir", "", "Working directory holding .env and sources.yaml (default: binary directory)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}
	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if strings.TrimSpace(*userName) == "" {
		fmt.Fprintln(os.Stderr, "--user must not be empty")
		return 2
	}
	if strings.TrimSpace(*fetchInterval) == "" {
		fmt.Fprintln(os.Stderr, "--fetch-interval must not be empty")
		return 2
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	binaryPath, resolvedWorkDir, err := resolveInstallPaths(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve install paths: %v\n", err)
		return 1
	}

	units := map[string]string{
		daemonServeUnitName:      buildServeUnitFile(strings.TrimSpace(*userName), binaryPath, resolvedWorkDir, *port),
		daemonFetchUnitName:      buildFetchUnitFile(strings.TrimSpace(*userName), binaryPath, resolvedWorkDir),
		daemonFetchTimerUnitName: buildFetchTimerUnitFile(strings.TrimSpace(*fetchInterval)),
	}
	for name, content := range units {
		if err := writeUnitFile(name, content); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", name, err)
			return 1
		}
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	enableArgs := append([]string{"enable"}, daemonUnitNames...)
	if err := runSystemctl(enableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable services: %v\n", err)
		return 1
	}

	fmt.Printf("Installed %s and %s\n", daemonServeUnitName, daemonFetchTimerUnitName)
	fmt.Println("Units are enabled on boot. Run `gather daemon start` to start them now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stopArgs := append([]string{"stop"}, daemonUnitNames...)
	if err := runSystemctl(stopArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop one or more units: %v\n", err)
	}

	disableArgs := append([]string{"disable"}, daemonUnitNames...)
	if err := runSystemctl(disableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable one or more units: %v\n", err)
	}

	for _, unitName := range []string{daemonServeUnitName, daemonFetchUnitName, daemonFetchTimerUnitName} {
		unitPath := filepath.Join(systemdUnitDir, unitName)
		if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
			return 1
		}
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s and %s\n", daemonServeUnitName, daemonFetchTimerUnitName)
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	systemctlArgs := make([]string, 0, 3+len(daemonUnitNames))
	systemctlArgs = append(systemctlArgs, action)
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, daemonUnitNames...)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s units: %v\n", action, err)
		return 1
	}
	return 0
}

func validatePort(port int, flagName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", flagName)
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo gather daemon %s", action, action)
}

// resolveInstallPaths returns the absolute binary path and working directory
// the unit files should reference.
func resolveInstallPaths(workDir string) (string, string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("locate gather binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	dir := strings.TrimSpace(workDir)
	if dir == "" {
		dir = filepath.Dir(exePath)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("normalize work dir %q: %w", dir, err)
	}
	if !isDir(absDir) {
		return "", "", fmt.Errorf("%q is not a directory", absDir)
	}
	return exePath, absDir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func buildServeUnitFile(userName, binaryPath, workDir string, port int) string {
	lines := []string{
		"[Unit]",
		"Description=Gather event API service",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=simple",
		"User=" + userName,
		"WorkingDirectory=" + workDir,
		"ExecStart=" + binaryPath + " serve --host 0.0.0.0 --port " + strconv.Itoa(port),
		"Restart=on-failure",
		"RestartSec=5",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func buildFetchUnitFile(userName, binaryPath, workDir string) string {
	lines := []string{
		"[Unit]",
		"Description=Gather periodic event fetch",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=oneshot",
		"User=" + userName,
		"WorkingDirectory=" + workDir,
		"ExecStart=" + binaryPath + " fetch",
		"",
	}
	return strings.Join(lines, "\n")
}

func buildFetchTimerUnitFile(interval string) string {
	lines := []string{
		"[Unit]",
		"Description=Schedule for gather periodic event fetch",
		"",
		"[Timer]",
		"OnCalendar=" + interval,
		"Persistent=true",
		"Unit=" + daemonFetchUnitName,
		"",
		"[Install]",
		"WantedBy=timers.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func printDaemonUsage() {
	fmt.Fprintln(os.Stderr, "gather daemon")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  gather daemon <action> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Actions:")
	fmt.Fprintln(os.Stderr, "  install     Write unit files, daemon-reload, and enable units on boot")
	fmt.Fprintln(os.Stderr, "  uninstall   Stop, disable, and remove unit files")
	fmt.Fprintln(os.Stderr, "  start       Start the API service and fetch timer")
	fmt.Fprintln(os.Stderr, "  stop        Stop the API service and fetch timer")
	fmt.Fprintln(os.Stderr, "  restart     Restart the API service and fetch timer")
	fmt.Fprintln(os.Stderr, "  status      Show status for both units")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Install flags:")
	fmt.Fprintln(os.Stderr, "  --user <name>            Service user (default: $USER)")
	fmt.Fprintln(os.Stderr, "  --port <n>               API port (default: 8090)")
	fmt.Fprintln(os.Stderr, "  --fetch-interval <expr>  systemd OnCalendar expression (default: hourly)")
	fmt.Fprintln(os.Stderr, "  --work-dir <path>        Directory holding .env and sources.yaml")
}
