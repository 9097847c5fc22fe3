package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/pricewatch/internal/buildinfo"
	"github.com/modoterra/pricewatch/pkg/config"
	"github.com/modoterra/pricewatch/pkg/transport/uds"
	tuimodel "github.com/modoterra/pricewatch/pkg/tui/model"
)

var (
	socketPath string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pricewatch",
	Short:        "Watch and control the price tracker's scraping workers",
	Long:         "pricewatch is a TUI and CLI for pricewatchd, the supervisor of the price tracker's scraping and import workers.",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon socket path (default: listen.socket from the config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to pricewatch.yaml")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

// resolveSocket returns the --socket flag, or the configured socket.
func resolveSocket() string {
	if socketPath != "" {
		return socketPath
	}
	if cfg, err := config.Load(configPath); err == nil {
		return cfg.Listen.Socket
	}
	return config.Default().Listen.Socket
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	sock := resolveSocket()
	ensureDaemon(sock)
	p := tea.NewProgram(tuimodel.New(sock), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon(sock string) {
	if _, err := os.Stat(sock); err == nil {
		return
	}
	args := []string{"--socket", sock}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command("pricewatchd", args...)
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not start pricewatchd:", err)
		return
	}
	go cmd.Wait()
	for range 30 {
		if _, err := os.Stat(sock); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: pricewatchd did not come up, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	sock := resolveSocket()
	client, err := uds.Dial(sock)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", sock, err)
	}
	return client, nil
}

// call dials the daemon, sends one request and decodes the reply into out.
func call(method string, data, out any) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var pong uds.PingResponse
		if err := call(uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (pricewatchd %s, pid %d)\n", pong.Version, pong.PID)
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pricewatch %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run pricewatchd in the foreground",
	Long:  "Normally the TUI starts the daemon, or systemd runs it. Use this to run it by hand.",
	RunE: func(_ *cobra.Command, _ []string) error {
		var args []string
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		if socketPath != "" {
			args = append(args, "--socket", socketPath)
		}
		cmd := exec.Command("pricewatchd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}
