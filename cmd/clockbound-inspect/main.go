// clockbound-inspect is a read-only REPL for poking at a published
// segment (and, optionally, a VMClock surface) from the command line.
//
// Usage:
//
//	clockbound-inspect [--segment-path path] [--vmclock-path path]
//
// Commands (in REPL):
//
//	read               Perform a reader snapshot and print the payload
//	now                Run the client now() API and print the bound
//	vmclock            Read the VMClock surface, if opened
//	watch <interval>   Repeat 'read' every interval (e.g. 500ms) until Enter
//	info               Show the segment path
//	help               Show this help
//	exit / quit / q    Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
	"github.com/aws/clockbound/pkg/clockbound"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("clockbound-inspect", pflag.ContinueOnError)
	segmentPath := fs.String("segment-path", clockbound.DefaultSegmentPath, "path to the published segment")
	vmclockPath := fs.String("vmclock-path", "/dev/vmclock0", "path to the VMClock device (optional)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := clockbound.Open(*segmentPath)
	if err != nil {
		return fmt.Errorf("opening segment: %w", err)
	}
	defer client.Close()

	seg, err := segment.OpenReadOnly(*segmentPath)
	if err != nil {
		return fmt.Errorf("opening segment for raw reads: %w", err)
	}
	defer seg.Close()

	var vm *vmclock.Surface
	if v, err := vmclock.Open(*vmclockPath); err == nil {
		vm = v
		defer vm.Close()
	}

	repl := &REPL{segmentPath: *segmentPath, client: client, seg: seg, vm: vm}

	return repl.Run()
}

// REPL is the interactive command loop, grounded on the sloty CLI's
// liner-based REPL.
type REPL struct {
	segmentPath string
	client      *clockbound.Client
	seg         *segment.Segment
	vm          *vmclock.Surface
	liner       *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".clockbound_inspect_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Printf("clockbound-inspect (segment=%s)\n", r.segmentPath)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("clockbound> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "read":
			r.cmdRead()

		case "now":
			r.cmdNow()

		case "vmclock":
			r.cmdVMClock()

		case "watch":
			r.cmdWatch(cmdArgs)

		case "info":
			r.cmdInfo()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil { //nolint:gosec // operator's own home directory
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  read               perform a reader snapshot and print the payload
  now                 run the client now() API and print the bound
  vmclock             read the VMClock surface, if opened
  watch <interval>    repeat 'read' every interval until Enter
  info                show the segment path
  help                show this help
  exit / quit / q     exit`)
}

func (r *REPL) cmdRead() {
	snap, err := r.seg.Read()
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("generation=%d status=%s as_of=%s void_after=%s bound_ns=%d max_drift_ppb=%d\n",
		snap.Generation, snap.ClockStatus, formatMono(snap.AsOf), formatMono(snap.VoidAfter), snap.BoundNs, snap.MaxDriftPPB)
}

func (r *REPL) cmdNow() {
	bound, err := r.client.Now()
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("status=%s earliest=%s latest=%s\n", bound.Status, formatMono(bound.Earliest), formatMono(bound.Latest))
}

func (r *REPL) cmdVMClock() {
	if r.vm == nil {
		fmt.Println("no VMClock surface opened")

		return
	}

	reading, err := r.vm.Read()
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("status=%s disruption_marker=%d\n", reading.Status, reading.DisruptionMarker)
}

func (r *REPL) cmdWatch(args []string) {
	interval := time.Second

	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			fmt.Printf("invalid interval: %v\n", err)

			return
		}

		interval = d
	}

	fmt.Println("watching, press Enter to stop...")

	stop := make(chan struct{})

	go func() {
		_, _ = fmt.Scanln()
		close(stop)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.cmdRead()
		}
	}
}

func (r *REPL) cmdInfo() {
	fmt.Printf("segment_path=%s\n", r.segmentPath)
}

func formatMono(t segment.MonoTime) string {
	return strconv.FormatInt(t.Sec, 10) + "." + fmt.Sprintf("%09d", t.Nsec)
}
