package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jdelaire/hostctl/core"
	"github.com/jdelaire/hostctl/internal/config"
	"github.com/jdelaire/hostctl/internal/keychain"
)

func ctlCommand(args []string) error {
	fs := newFlagSet("ctl")
	configPath := fs.String("config", config.DefaultPath(), "path to the YAML config file")
	socket := fs.String("socket", "", "control socket path (default: socket_path from the config)")
	source := fs.String("source", "hostctl-ctl", "source label for notify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("usage: hostctl ctl status|start|stop|notify TEXT")
	}

	path := *socket
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		path = cfg.SocketPath
	}
	if path == "" {
		return errors.New("no control socket configured; set socket_path or pass --socket")
	}

	req := core.Request{Action: rest[0]}
	if rest[0] == core.ActionNotify {
		text := strings.Join(rest[1:], " ")
		payload, err := json.Marshal(core.NotifyPayload{Text: text, Source: *source})
		if err != nil {
			return err
		}
		req.Payload = payload
	}

	resp, err := core.Call(context.Background(), path, req)
	if err != nil {
		return err
	}

	state := "stopped"
	if resp.Running {
		state = "running"
	}
	if resp.Since != "" {
		state += " since " + resp.Since
	}
	fmt.Printf("%s (%d authorized users)\n", state, resp.Users)
	if resp.Sent > 0 {
		fmt.Printf("sent to %d chats\n", resp.Sent)
	}
	if !resp.OK {
		return fmt.Errorf("%s failed: %s", req.Action, resp.Error)
	}
	return nil
}

func setTokenCommand(args []string) error {
	fs := newFlagSet("set-token")
	configPath := fs.String("config", config.DefaultPath(), "path to the YAML config file")
	account := fs.String("account", config.DefaultKeychainAccount, "keychain account name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "paste the bot token and press enter:")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New("empty token")
	}

	if err := keychain.Set(*account, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "token stored in keychain account %q\n", *account)

	shadowed, err := config.RecordKeychainAccount(*configPath, *account)
	if err != nil {
		return fmt.Errorf("record keychain account: %w", err)
	}
	if shadowed {
		fmt.Fprintf(os.Stderr, "note: %s sets token, which takes precedence over the keychain\n", *configPath)
	}
	return nil
}
