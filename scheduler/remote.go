package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// RemoteCommand is one parsed line from the live control surface: bpm,
// transposition, groove, skip, quit, or help.
type RemoteCommand struct {
	Verb string
	Args []string
}

// ParseRemoteCommand splits a line of user input into a verb and its
// arguments. An empty or whitespace-only line parses to an empty verb.
func ParseRemoteCommand(line string) RemoteCommand {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return RemoteCommand{}
	}
	return RemoteCommand{Verb: strings.ToLower(fields[0]), Args: fields[1:]}
}

// Apply executes cmd against the scheduler, returning a short human-readable
// result line and whether the caller should stop reading further commands
// (the "quit" verb).
func (s *Scheduler) Apply(cmd RemoteCommand) (string, bool, error) {
	switch cmd.Verb {
	case "":
		return "", false, nil
	case "help":
		return "commands: bpm <n> | transposition <semitones> | groove <w1,w2,...> | skip <tick|pct%|s<section>[.frac]|next> | quit", false, nil
	case "quit":
		s.AbortPlay()
		return "aborting playback", true, nil
	case "bpm":
		if len(cmd.Args) != 1 {
			return "", false, fmt.Errorf("usage: bpm <beats-per-minute>")
		}
		bpm, err := strconv.ParseFloat(cmd.Args[0], 64)
		if err != nil {
			return "", false, fmt.Errorf("bpm: %w", err)
		}
		s.SetMilliBPM(int64(bpm * 1000))
		return fmt.Sprintf("tempo set to %g BPM", bpm), false, nil
	case "transposition":
		if len(cmd.Args) != 1 {
			return "", false, fmt.Errorf("usage: transposition <semitones>")
		}
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			return "", false, fmt.Errorf("transposition: %w", err)
		}
		s.SetTransposition(n)
		return fmt.Sprintf("transposition set to %+d semitones", n), false, nil
	case "groove":
		if len(cmd.Args) != 1 {
			return "", false, fmt.Errorf("usage: groove <w1,w2,...>")
		}
		parts := strings.Split(cmd.Args[0], ",")
		weights := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return "", false, fmt.Errorf("groove: %w", err)
			}
			weights = append(weights, n)
		}
		s.Groove.SetWeights(weights)
		return fmt.Sprintf("groove set to %v", weights), false, nil
	case "skip":
		if len(cmd.Args) != 1 {
			return "", false, fmt.Errorf("usage: skip <tick|N%%|s<section>[.frac]|next>")
		}
		target, err := parseSkipArg(cmd.Args[0])
		if err != nil {
			return "", false, err
		}
		s.Skip(target)
		return fmt.Sprintf("skipping to %s", cmd.Args[0]), false, nil
	default:
		return "", false, fmt.Errorf("unknown command %q (try \"help\")", cmd.Verb)
	}
}

func parseSkipArg(arg string) (SkipTarget, error) {
	switch {
	case arg == "next":
		return SkipTarget{Kind: SkipNext}, nil
	case strings.HasSuffix(arg, "%"):
		pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			return SkipTarget{}, fmt.Errorf("skip: %w", err)
		}
		return SkipTarget{Kind: SkipPercent, Percent: pct}, nil
	case strings.HasPrefix(arg, "s"):
		f, err := strconv.ParseFloat(strings.TrimPrefix(arg, "s"), 64)
		if err != nil {
			return SkipTarget{}, fmt.Errorf("skip: %w", err)
		}
		return SkipTarget{Kind: SkipSection, Section: f}, nil
	default:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return SkipTarget{}, fmt.Errorf("skip: %w", err)
		}
		return SkipTarget{Kind: SkipTick, Tick: n}, nil
	}
}
