// hostctl is a remote-control agent for this computer, driven through
// a Telegram bot. Authorized users can query status, take screenshots
// and put the host to sleep or power it off.
//
// Usage:
//
//	hostctl run [--config PATH] [--log-level LEVEL]
//	hostctl ctl status|start|stop|notify [TEXT] [--socket PATH]
//	hostctl set-token [--account NAME] < token.txt
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "run":
		return runCommand(args[1:])
	case "ctl":
		return ctlCommand(args[1:])
	case "set-token":
		return setTokenCommand(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `hostctl: remote control for this computer over Telegram.

Usage:
  hostctl run        start the agent and poll for commands
  hostctl ctl        talk to a running agent (status, start, stop, notify)
  hostctl set-token  store the bot token in the system keychain

Run "hostctl <command> --help" for flags.
`)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hostctl "+name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
