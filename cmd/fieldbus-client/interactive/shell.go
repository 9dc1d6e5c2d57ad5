// Package interactive provides the interactive command-line interface of
// fieldbus-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/fieldbus/fieldbus-go/pkg/subscriber"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Services reports the remote services currently available.
type Services interface {
	AvailableServices() []wire.ServiceKey
}

// Shell drives the subscription toggler from user input.
type Shell struct {
	toggler  *subscriber.Toggler
	services Services
	rl       *readline.Instance

	closeOnce sync.Once
}

// New creates a readline backed shell. Attach must be called before Run.
func New() (*Shell, error) {
	return newShell(&readline.Config{})
}

func newShell(cfg *readline.Config) (*Shell, error) {
	cfg.Prompt = "client> "
	cfg.InterruptPrompt = "^C"
	cfg.EOFPrompt = "exit"
	cfg.AutoComplete = readline.NewPrefixCompleter(
		readline.PcItem("subscribe"),
		readline.PcItem("unsubscribe"),
		readline.PcItem("toggle"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Attach sets what the shell controls.
func (s *Shell) Attach(toggler *subscriber.Toggler, services Services) {
	s.toggler = toggler
	s.services = services
}

// Close releases the terminal. It is safe to call more than once.
func (s *Shell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rl.Close()
	})
	return err
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done. cancel is called when
// the user leaves the shell.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.Close()

	out := s.rl.Stdout()
	printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(line, out) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "help", "?":
		printHelp(out)
	case "subscribe", "sub":
		if s.toggler.Set(subscriber.Subscribed) {
			fmt.Fprintln(out, "Subscribed.")
		} else {
			fmt.Fprintln(out, "Already subscribed.")
		}
	case "unsubscribe", "unsub":
		if s.toggler.Set(subscriber.Unsubscribed) {
			fmt.Fprintln(out, "Unsubscribed.")
		} else {
			fmt.Fprintln(out, "Already unsubscribed.")
		}
	case "toggle", "t":
		fmt.Fprintf(out, "Now %s.\n", strings.ToLower(s.toggler.Toggle().String()))
	case "status", "s":
		s.printStatus(out)
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		return true
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help')\n", parts[0])
	}
	return false
}

func (s *Shell) printStatus(out io.Writer) {
	fmt.Fprintf(out, "Subscription: %s\n", strings.ToLower(s.toggler.State().String()))
	avail := s.services.AvailableServices()
	if len(avail) == 0 {
		fmt.Fprintln(out, "Available services: none")
		return
	}
	fmt.Fprintln(out, "Available services:")
	for _, k := range avail {
		fmt.Fprintf(out, "  %s\n", k)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Commands:
  subscribe    Request the services and subscribe to the eventgroup
  unsubscribe  Unsubscribe and release the services
  toggle       Switch between the two
  status       Show subscription state and available services
  quit         Exit
`)
}
