// drillrun runs one script against one level from the command line
// and prints the replay, tick by tick. Exit status 0 means the
// objective was met.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/run"
	"github.com/codeofpride/drillcore/internal/trace"
)

func main() {
	var (
		levelsPath = flag.String("levels", "data/levels.json", "path to level pack JSON")
		levelID    = flag.Int("level", 0, "level id to run")
		scriptPath = flag.String("script", "", "path to script file (default: level starter code)")
		tracePath  = flag.String("trace", "", "archive the trace to this .jsonl.zst file")
		sliceSteps = flag.Int("slice-steps", 0, "statement budget per slice (0 = default)")
		totalSteps = flag.Int("total-steps", 0, "statement budget for the whole run (0 = default)")
		maxTicks   = flag.Int("max-ticks", 0, "tick ceiling (0 = default)")
		quiet      = flag.Bool("q", false, "suppress per-tick output")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[drillrun] ", log.LstdFlags|log.Lmsgprefix)

	pack, err := level.LoadPack(*levelsPath)
	if err != nil {
		logger.Fatalf("levels: %v", err)
	}
	if *levelID == 0 {
		logger.Fatalf("-level is required; available: %s", levelList(pack))
	}
	lv, ok := pack.ByID(*levelID)
	if !ok {
		logger.Fatalf("no level %d; available: %s", *levelID, levelList(pack))
	}

	source := lv.StarterCode
	if *scriptPath != "" {
		b, err := os.ReadFile(*scriptPath)
		if err != nil {
			logger.Fatalf("script: %v", err)
		}
		source = string(b)
	}

	ctrl, err := run.New(lv, source, run.Options{
		SliceSteps: *sliceSteps,
		TotalSteps: *totalSteps,
		MaxTicks:   *maxTicks,
	})
	if err != nil {
		logger.Fatalf("run: %v", err)
	}
	res := ctrl.Run(context.Background())

	if !*quiet {
		printReplay(res)
	}

	if *tracePath != "" {
		if err := archiveTrace(*tracePath, res.Trace); err != nil {
			logger.Fatalf("trace: %v", err)
		}
		logger.Printf("trace archived to %s", *tracePath)
	}

	fmt.Printf("verdict=%s reason=%s ticks=%d steps=%d\n", res.Verdict, res.Reason, res.Ticks, res.StepsUsed)
	switch {
	case res.FaultMessage != "":
		fmt.Printf("fault: line %d: %s\n", res.FaultLine, res.FaultMessage)
	case res.FailedConstraint != "":
		fmt.Printf("failed constraint: %s\n", res.FailedConstraint)
	}

	if res.Verdict != run.VerdictSuccess {
		os.Exit(1)
	}
}

func levelList(pack *level.Pack) string {
	var ids []string
	for _, l := range pack.Levels {
		ids = append(ids, fmt.Sprintf("%d (%s)", l.ID, l.Title))
	}
	return strings.Join(ids, ", ")
}

func printReplay(res run.Result) {
	for _, ev := range res.Trace {
		fmt.Printf("tick %d:\n", ev.Tick)
		for _, line := range ev.Output {
			fmt.Printf("  > %s\n", line)
		}
		for _, c := range ev.Commands {
			switch c.Kind {
			case "move":
				fmt.Printf("  %s -> (%d,%d)\n", c.Member, c.X, c.Y)
			case "spawn":
				fmt.Printf("  %s joins at (%d,%d) [%s]\n", c.Member, c.X, c.Y, c.Section)
			case "dismiss":
				fmt.Printf("  %s leaves the field\n", c.Member)
			case "signal":
				fmt.Printf("  signal: %s\n", c.Signal)
			}
		}
		for _, rej := range ev.Rejected {
			fmt.Printf("  rejected %s for %s: %s\n", rej.Command.Kind, rej.Command.Member, rej.Reason)
		}
		for _, obj := range ev.Objective {
			fmt.Printf("  [%s] %s", obj.Name, obj.Verdict)
			if obj.Reason != "" {
				fmt.Printf(" (%s)", obj.Reason)
			}
			fmt.Println()
		}
		if ev.FaultMessage != "" {
			fmt.Printf("  fault: line %d: %s\n", ev.FaultLine, ev.FaultMessage)
		}
	}
}

func archiveTrace(path string, events []trace.Event) error {
	dir, name := ".", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		dir, name = path[:i], path[i+1:]
	}
	name = strings.TrimSuffix(name, ".jsonl.zst")
	w, err := trace.NewWriter(dir, name)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
