package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/hfi-neuro/wss-core/internal/infrastructure/logging"
	"github.com/hfi-neuro/wss-core/internal/stim"
)

// Defaults applied when the analog command omits amplitude or
// inter-pulse interval.
const (
	defaultAnalogAmp = 3  // mA
	defaultAnalogIPI = 10 // ms
)

// console is the interactive command loop for bench and fitting sessions.
type console struct {
	ctrl *stim.Controller
	log  *logging.Logger
	rl   *readline.Instance
}

func newConsole(ctrl *stim.Controller, log *logging.Logger) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wss> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &console{
		ctrl: ctrl,
		log:  log,
		rl:   rl,
	}, nil
}

// run reads commands until EOF, quit, or context cancellation.
func (c *console) run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status":
			c.cmdStatus()

		case "start":
			c.report(c.ctrl.StartStimulation())

		case "stop":
			c.report(c.ctrl.StopStimulation())

		case "stim", "s":
			c.cmdStim(args)

		case "analog", "a":
			c.cmdAnalog(args)

		case "intensity":
			c.cmdIntensity(args)

		case "channel", "ch":
			c.cmdChannel(args)

		case "param", "p":
			c.cmdParam(args)

		case "params":
			c.cmdParams()

		case "reload-core":
			c.report(c.ctrl.LoadCoreConfigFile())

		case "reload-params":
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			c.report(c.ctrl.LoadParamsJson(path))

		case "save-params":
			c.report(c.ctrl.SaveParamsJson())

		case "save":
			c.cmdGroupOp(args, c.ctrl.Save)

		case "load":
			c.cmdGroupOp(args, c.ctrl.Load)

		case "waveform", "wf":
			c.cmdWaveform(args)

		case "reset":
			c.report(c.ctrl.ResetRadio())

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
WSS Session Commands:
  Stimulation:
    start                          - Start stimulation on all units
    stop                           - Stop stimulation on all units
    stim <finger> <0..1>           - Normalised stimulation on a finger
    analog <finger> <pw> [amp] [ipi] - Raw analog stimulation (amp 3 mA, ipi 10 ms)
    intensity <finger>             - Show last commanded pulse width

  Parameters:
    channel <finger> <maxPW> <minPW> <amp> - Set channel stimulation window
    param get <key>                - Read a stimulation parameter
    param set <key> <value>        - Write a stimulation parameter
    params                         - List all stimulation parameters
    reload-core                    - Re-read the core config file
    reload-params [path]           - Reload stimulation parameters
    save-params                    - Persist parameters to disk

  Device:
    save [group]                   - Persist config on unit(s)
    load [group]                   - Restore config on unit(s)
    waveform <file> <event-id>     - Load a waveform file onto the device
    reset                          - Power-cycle the radio link
    status                         - Show session status

  General:
    help                           - Show this help
    quit                           - Exit

  Fingers: thumb index middle ring pinky, or ch1..chN`)
}

func (c *console) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintln(out, "\nSession Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Session ID:     %s\n", c.ctrl.SessionID())
	fmt.Fprintf(out, "  Ready:          %v\n", c.ctrl.Ready())
	fmt.Fprintf(out, "  Stim active:    %v\n", c.ctrl.StimActive())
	fmt.Fprintf(out, "  Extended cmds:  %v\n", c.ctrl.BasicSupported())
	fmt.Fprintf(out, "  Ticks:          %d\n", c.ctrl.TickCount())
	fmt.Fprintln(out)
}

func (c *console) cmdStim(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: stim <finger> <magnitude 0..1>")
		return
	}
	magnitude, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid magnitude: %v\n", err)
		return
	}
	c.report(c.ctrl.StimulateNormalized(args[0], magnitude))
}

func (c *console) cmdAnalog(args []string) {
	if len(args) < 2 || len(args) > 4 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: analog <finger> <pulse-width-us> [amplitude-ma] [ipi-ms]")
		return
	}
	pw, amp, ipi, err := parseAnalogArgs(args[1:])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid argument: %v\n", err)
		return
	}
	c.report(c.ctrl.StimulateAnalog(args[0], pw, amp, ipi))
}

// parseAnalogArgs parses pulse width plus optional amplitude and
// inter-pulse interval, filling in the device defaults (3 mA, 10 ms)
// when omitted.
func parseAnalogArgs(args []string) (pw, amp, ipi int, err error) {
	amp, ipi = defaultAnalogAmp, defaultAnalogIPI

	vals, err := parseInts(args)
	if err != nil {
		return 0, 0, 0, err
	}

	pw = vals[0]
	if len(vals) > 1 {
		amp = vals[1]
	}
	if len(vals) > 2 {
		ipi = vals[2]
	}
	return pw, amp, ipi, nil
}

func (c *console) cmdIntensity(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: intensity <finger>")
		return
	}
	pw, err := c.ctrl.GetStimIntensity(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s = %d us\n", args[0], pw)
}

func (c *console) cmdChannel(args []string) {
	if len(args) < 4 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: channel <finger> <maxPW-us> <minPW-us> <amp-ma>")
		return
	}
	vals, err := parseInts(args[1:4])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid argument: %v\n", err)
		return
	}
	c.report(c.ctrl.UpdateChannelParams(args[0], vals[0], vals[1], vals[2]))
}

func (c *console) cmdParam(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: param get <key> | param set <key> <value>")
		return
	}

	switch args[0] {
	case "get":
		value, err := c.ctrl.GetStimParam(args[1])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.rl.Stdout(), "%s = %g\n", args[1], value)

	case "set":
		if len(args) < 3 {
			fmt.Fprintln(c.rl.Stdout(), "Usage: param set <key> <value>")
			return
		}
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid value: %v\n", err)
			return
		}
		c.report(c.ctrl.AddOrUpdateStimParam(args[1], value))

	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: param get <key> | param set <key> <value>")
	}
}

func (c *console) cmdParams() {
	params, err := c.ctrl.AllStimParams()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if len(params) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No stimulation parameters set")
		return
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(c.rl.Stdout(), "  %s = %g\n", k, params[k])
	}
}

func (c *console) cmdGroupOp(args []string, op func(group int) error) {
	group := 0
	if len(args) > 0 {
		g, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid group: %v\n", err)
			return
		}
		group = g
	}
	c.report(op(group))
}

func (c *console) cmdWaveform(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: waveform <file> <event-id>")
		return
	}
	eventID, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid event id: %v\n", err)
		return
	}
	c.report(c.ctrl.LoadWaveform(args[0], eventID))
}

// report prints OK or the error for a command result.
func (c *console) report(err error) {
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "OK")
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", a)
		}
		out[i] = v
	}
	return out, nil
}
