// Command soundhelix is the SoundHelix CLI: generalizes
// main.go's parseArgs/command-dispatch shape into the
// `-h/--help -v/--version -s/--song-name -m/--show-midi-devices <file>`
// surface, wiring config.Load -> orchestrate.Build -> scheduler.Play.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/soundhelix/soundhelix-go/config"
	"github.com/soundhelix/soundhelix-go/display"
	"github.com/soundhelix/soundhelix-go/midiexport"
	"github.com/soundhelix/soundhelix-go/orchestrate"
	"github.com/soundhelix/soundhelix-go/scheduler"
	"github.com/soundhelix/soundhelix-go/strudel"
)

const version = "0.1.0"

type cliArgs struct {
	help          bool
	showVersion   bool
	showDevices   bool
	songName      string
	songSeed      *int64
	exportPath    string
	exportStrudel string
	interactive   bool
	file          string
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		printUsage()
		os.Exit(1)
	}

	switch {
	case args.help:
		printUsage()
		os.Exit(0)
	case args.showVersion:
		fmt.Println("soundhelix-go", version)
		os.Exit(0)
	case args.showDevices:
		listDevices()
		os.Exit(0)
	}

	if args.file == "" {
		fmt.Fprintln(os.Stderr, "Error: a song document is required")
		printUsage()
		os.Exit(1)
	}

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func parseArgs(raw []string) (cliArgs, error) {
	var a cliArgs
	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		switch {
		case arg == "-h" || arg == "--help":
			a.help = true
		case arg == "-v" || arg == "--version":
			a.showVersion = true
		case arg == "-m" || arg == "--show-midi-devices":
			a.showDevices = true
		case arg == "-s" || arg == "--song-name":
			if i+1 >= len(raw) {
				return a, fmt.Errorf("%s requires a value", arg)
			}
			i++
			if strings.HasPrefix(raw[i], "seed:") {
				n, err := strconv.ParseInt(strings.TrimPrefix(raw[i], "seed:"), 10, 64)
				if err != nil {
					return a, fmt.Errorf("invalid seed %q", raw[i])
				}
				a.songSeed = &n
			} else {
				a.songName = raw[i]
			}
		case strings.HasPrefix(arg, "--song-name="):
			a.songName = strings.TrimPrefix(arg, "--song-name=")
		case arg == "--export":
			if i+1 >= len(raw) {
				return a, fmt.Errorf("--export requires a path")
			}
			i++
			a.exportPath = raw[i]
		case arg == "--export-strudel":
			if i+1 >= len(raw) {
				return a, fmt.Errorf("--export-strudel requires a path")
			}
			i++
			a.exportStrudel = raw[i]
		case arg == "-i" || arg == "--interactive":
			a.interactive = true
		default:
			a.file = arg
		}
	}
	return a, nil
}

func run(args cliArgs) error {
	doc, err := config.Load(args.file)
	if err != nil {
		return err
	}
	if args.songName != "" || args.songSeed != nil {
		overrides := config.Overrides{SongName: args.songName, Seed: args.songSeed}
		overrides.Apply(doc)
	}

	ctx, err := orchestrate.Build(doc)
	if err != nil {
		return err
	}

	channels := buildChannels(doc.Player)
	milliBPM := int64(doc.Player.MilliBPM.Resolve(doc.Seeding.Rand(1)))

	if args.exportPath != "" {
		if err := midiexport.Export(ctx, channels, milliBPM, args.exportPath); err != nil {
			return err
		}
		fmt.Println("Exported to", args.exportPath)
		return nil
	}

	if args.exportStrudel != "" {
		src := strudel.Generate(ctx, float64(milliBPM)/1000/4)
		if err := os.WriteFile(args.exportStrudel, []byte(src), 0644); err != nil {
			return fmt.Errorf("writing %q: %w", args.exportStrudel, err)
		}
		fmt.Println("Exported to", args.exportStrudel)
		return nil
	}

	devices := make(map[string]*scheduler.Device)
	for _, dc := range doc.Player.Devices {
		devices[dc.Name] = &scheduler.Device{Name: dc.Name, Candidates: dc.Candidates, UseClockSynchronization: dc.UseClockSynchronization}
	}

	groove := scheduler.NewGroove(doc.Player.Groove, ctx.Structure.TicksPerBeat)
	sched := scheduler.NewScheduler(devices, channels, groove, ctx.Structure.TicksPerBeat, milliBPM)
	sched.BeforePlayWaitTicks = doc.Player.BeforePlayWaitTicks.Resolve(doc.Seeding.Rand(1))
	sched.AfterPlayWaitTicks = doc.Player.AfterPlayWaitTicks.Resolve(doc.Seeding.Rand(1))

	if err := sched.Open(); err != nil {
		return err
	}
	defer sched.Close()

	logrus.WithField("songName", ctx.SongName).Info("soundhelix: starting playback")

	if args.interactive {
		dashboard := display.NewDashboard(sched, ctx)
		prog := tea.NewProgram(dashboard)
		playErr := make(chan error, 1)
		go func() { playErr <- sched.Play(ctx, ctx.Arrangement) }()
		if _, err := prog.Run(); err != nil {
			return err
		}
		sched.AbortPlay()
		return <-playErr
	}

	fmt.Printf("Playing %q (Ctrl+C to stop)\n", ctx.SongName)
	return sched.Play(ctx, ctx.Arrangement)
}

func buildChannels(p config.PlayerConfig) map[string]scheduler.DeviceChannel {
	out := make(map[string]scheduler.DeviceChannel, len(p.Channels))
	for instrument, cc := range p.Channels {
		program := -1
		if cc.Program != nil {
			program = *cc.Program
		}
		out[instrument] = scheduler.DeviceChannel{
			Device:                   cc.Device,
			Channel:                  uint8(cc.Channel),
			Program:                  program,
			LegatoController:         orDefault(cc.LegatoController, -1),
			LegatoControllerValueOn:  cc.LegatoControllerValueOn,
			LegatoControllerValueOff: cc.LegatoControllerValueOff,
		}
	}
	return out
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func listDevices() {
	fmt.Println("Available MIDI output devices:")
	for _, out := range midi.OutPorts() {
		fmt.Printf("  %s\n", out.String())
	}
}

func printUsage() {
	fmt.Println("soundhelix-go", version)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  soundhelix [options] <song.yaml>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h, --help                 Show this help")
	fmt.Println("  -v, --version              Show version")
	fmt.Println("  -m, --show-midi-devices    List available MIDI output devices")
	fmt.Println("  -s, --song-name <name|seed:n>  Override the song name or its seed")
	fmt.Println("  -i, --interactive          Show a live dashboard with a command prompt")
	fmt.Println("  --export <path>            Write a Standard MIDI File instead of playing")
	fmt.Println("  --export-strudel <path>    Write Strudel.cc mini-notation instead of playing")
}
