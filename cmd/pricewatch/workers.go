package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/linkcheck"
	"github.com/modoterra/pricewatch/pkg/transport/uds"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(mainCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(reloadCmd)
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the main worker and import jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var workers []core.Worker
		if err := call(uds.MethodWorkers, nil, &workers); err != nil {
			return err
		}
		return printWorkers(cmd.OutOrStdout(), workers, statusJSON)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printWorkers(w io.Writer, workers []core.Worker, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(workers)
	}
	if len(workers) == 0 {
		fmt.Fprintln(w, "no workers")
		return nil
	}

	fmt.Fprintf(w, "%-44s %-13s %-7s %-8s %s\n", "ID", "STATUS", "PID", "UPTIME", "DETAIL")
	for _, wk := range workers {
		pid := "-"
		if wk.PID > 0 {
			pid = fmt.Sprint(wk.PID)
		}
		fmt.Fprintf(w, "%-44s %-13s %-7s %-8s %s\n", wk.ID, wk.Status, pid, uptime(wk), detail(wk))
	}
	return nil
}

func uptime(wk core.Worker) string {
	if wk.Status != core.StatusRunning {
		return "-"
	}
	return (time.Duration(wk.UptimeSec) * time.Second).String()
}

func detail(wk core.Worker) string {
	switch {
	case wk.RestartAt != nil:
		return "restart at " + wk.RestartAt.Local().Format(core.TimeLayout)
	case wk.Link != "":
		return wk.Link
	case wk.ExitCode != nil:
		return fmt.Sprintf("exit code %d", *wk.ExitCode)
	default:
		return ""
	}
}

// --- Log ---

var (
	logJSON   bool
	logFollow bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the worker log, most recent first",
	Long:  "Print the worker log, most recent first. With --follow the history is printed oldest first and new lines are appended as they arrive.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		p := newLinePrinter(cmd.OutOrStdout(), logJSON)

		live := make(chan core.LogLine, 256)
		if logFollow {
			client.OnEvent(func(m uds.Message) {
				if m.Method != uds.EventLogsLine {
					return
				}
				var l core.LogLine
				if m.UnmarshalData(&l) == nil {
					select {
					case live <- l:
					default:
					}
				}
			})
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		var lines []core.LogLine
		err = client.Call(ctx, uds.MethodLogEntries, nil, &lines)
		cancel()
		if err != nil {
			return err
		}

		if !logFollow {
			for _, l := range lines {
				p.print(l)
			}
			return nil
		}

		slices.Reverse(lines)
		var last time.Time
		for _, l := range lines {
			p.print(l)
			last = l.Time
		}

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		for {
			select {
			case <-sigCtx.Done():
				return nil
			case <-client.Done():
				return fmt.Errorf("daemon closed the connection")
			case l := <-live:
				// Lines already in the history may also arrive as events.
				if !l.Time.After(last) && !last.IsZero() {
					continue
				}
				p.print(l)
			}
		}
	},
}

func init() {
	logCmd.Flags().BoolVar(&logJSON, "json", false, "one JSON object per line")
	logCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "keep printing new lines")
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiCyan  = "\x1b[36m"
)

type linePrinter struct {
	w     io.Writer
	json  *json.Encoder
	color bool
}

func newLinePrinter(w io.Writer, asJSON bool) *linePrinter {
	p := &linePrinter{w: w, color: colorEnabled(w)}
	if asJSON {
		p.json = json.NewEncoder(w)
	}
	return p
}

// colorEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *linePrinter) print(l core.LogLine) {
	if p.json != nil {
		p.json.Encode(l)
		return
	}
	text := l.Format()
	if p.color {
		switch l.Severity() {
		case core.SeverityError:
			text = ansiRed + text + ansiReset
		case core.SeverityNotice:
			text = ansiCyan + text + ansiReset
		}
	}
	fmt.Fprintln(p.w, text)
}

// --- Import ---

var importCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Start an import job for a product link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := linkcheck.Validate(args[0])
		if err != nil {
			return err
		}
		var resp uds.RunImportResponse
		if err := call(uds.MethodRunImport, uds.RunImportRequest{Link: link}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.ID)
		return nil
	},
}

// --- Main worker ---

var mainCmd = &cobra.Command{
	Use:   "main",
	Short: "Start or stop the main scraping worker",
}

var mainStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the main worker now, skipping any pending cooldown",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := call(uds.MethodStartMain, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "main worker started ✓")
		return nil
	},
}

var mainStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the main worker and suppress its restart",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := call(uds.MethodStopMain, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "main worker stopped ✓")
		return nil
	},
}

func init() {
	mainCmd.AddCommand(mainStartCmd)
	mainCmd.AddCommand(mainStopCmd)
}

// --- Cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a worker by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := core.ParseWorkerID(args[0]); err != nil {
			return err
		}
		if err := call(uds.MethodCancelWorker, uds.CancelWorkerRequest{ID: args[0]}, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancel → %s ✓\n", args[0])
		return nil
	},
}

// --- Reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the daemon to re-read its config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp uds.ReloadConfigResponse
		if err := call(uds.MethodReloadConfig, nil, &resp); err != nil {
			return err
		}
		file := resp.File
		if file == "" {
			file = "defaults and environment"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config reloaded from %s ✓\n", file)
		return nil
	},
}
