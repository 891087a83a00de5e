// Command chat is a terminal client for the relay endpoint. Each line typed is
// sent as one chat turn and the reply is printed as it streams in.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chadiek/maternal-support/internal/relay"
)

type options struct {
	endpoint string
	user     string
	voice    bool
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the maternal support assistant from the terminal",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			c := newClient(opts)
			if len(args) > 0 {
				ask(ctx, c, opts, strings.Join(args, " "), cmd.OutOrStdout())
				return nil
			}
			return repl(ctx, c, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "url", envOr("RELAY_URL", "http://localhost:8080/api/generate"), "relay endpoint URL")
	root.PersistentFlags().StringVar(&opts.user, "user", os.Getenv("CHAT_USER_ID"), "user id sent as X-User-ID")
	root.Flags().BoolVar(&opts.voice, "voice", false, "request whole voice replies instead of streamed chat")

	root.AddCommand(&cobra.Command{
		Use:   "title <message>",
		Short: "Suggest a conversation title for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := newClient(opts).Title(cmd.Context(), strings.Join(args, " "))
			if title == "" {
				return fmt.Errorf("no title returned")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), title)
			return err
		},
	})
	return root
}

func newClient(opts *options) *relay.Client {
	c := relay.NewClient(opts.endpoint)
	c.UserID = opts.user
	return c
}

func ask(ctx context.Context, c *relay.Client, opts *options, text string, out io.Writer) {
	if opts.voice {
		fmt.Fprintln(out, c.Send(ctx, text))
		return
	}
	c.Stream(ctx, text, func(chunk string) { fmt.Fprint(out, chunk) })
	fmt.Fprintln(out)
}

func repl(ctx context.Context, c *relay.Client, opts *options, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
		case "/quit", "/exit":
			return nil
		default:
			ask(ctx, c, opts, text, out)
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
