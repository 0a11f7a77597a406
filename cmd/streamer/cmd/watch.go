package cmd

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Follow the live events of a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "ws://localhost:8080", "Streamer server address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(watchAddr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	u = u.JoinPath("v1", "threads", args[0], "watch")

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Watching thread %s at %s (Ctrl+C to stop)\n", args[0], u.Host)

	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = nil
				}
				done <- err
				return
			}
			printEvent(w, data)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-interrupt:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		return nil
	}
}

func printEvent(w io.Writer, data []byte) {
	ev := gjson.ParseBytes(data)
	typ := ev.Get("type").String()
	switch typ {
	case "tool_update":
		fmt.Fprintf(w, "%s %s %s\n", color.CyanString("[tool]"),
			ev.Get("data.toolName").String(), color.HiBlackString(ev.Get("data.status").String()))
	case "agent_transfer":
		fmt.Fprintf(w, "%s %s\n", color.MagentaString("[agent]"), ev.Get("data.toAgent").String())
	case "interrupt":
		fmt.Fprintf(w, "%s %s\n", color.YellowString("[interrupt]"), ev.Get("interrupt").Raw)
	case "error":
		fmt.Fprintf(w, "%s %s\n", color.RedString("[error]"), ev.Get("data.message").String())
	default:
		fmt.Fprintf(w, "%s %s\n", color.HiBlackString("["+typ+"]"), clip(ev.Get("data").Raw, 200))
	}
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
