package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"speakup/feedback"
	"speakup/session"
)

const defaultHistory = 5

// drive runs the engine from line commands, one per line:
//
//	BEGIN, END, WAIT, RESET, STATUS, MANUAL <text>, HISTORY [n], SLEEP <ms>, QUIT
//
// WAIT blocks until analysis finishes and prints the report. HISTORY lists
// the last n ledger entries, newest first.
func drive(e *session.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "":
		case "BEGIN":
			report(out, "begin", e.Begin())
		case "END":
			report(out, "end", e.End())
		case "WAIT":
			e.Wait()
			snap := e.Snapshot()
			fmt.Fprintf(out, "phase: %s\n", snap.Phase)
			if snap.Report != nil {
				if err := snap.Report.WriteYAML(out); err != nil {
					return err
				}
				fmt.Fprintf(out, "coins: %d streak: %d\n", snap.Stats.Coins, snap.Stats.Streak)
			}
		case "RESET":
			e.Reset()
			fmt.Fprintln(out, "reset")
		case "STATUS":
			snap := e.Snapshot()
			fmt.Fprintf(out, "phase: %s elapsed: %s transcript: %q\n",
				snap.Phase, feedback.FormatElapsed(snap.Elapsed), snap.LiveTranscript)
		case "MANUAL":
			report(out, "manual", e.SubmitManualText(arg))
		case "HISTORY":
			n := defaultHistory
			if v, err := strconv.Atoi(arg); err == nil && v > 0 {
				n = v
			}
			entries, err := e.History(n)
			if err != nil {
				report(out, "history", err)
				continue
			}
			fmt.Fprintf(out, "history: %d\n", len(entries))
			for _, en := range entries {
				fmt.Fprintf(out, "  score: %d coins: +%d total: %d streak: %d\n",
					en.Score, en.CoinsDelta, en.After.Coins, en.After.Streak)
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q\n", cmd)
		}
	}
	return scanner.Err()
}

func report(out io.Writer, op string, err error) {
	if err != nil {
		fmt.Fprintf(out, "%s: error: %v\n", op, err)
		return
	}
	fmt.Fprintf(out, "%s: ok\n", op)
}
