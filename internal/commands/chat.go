package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"cchat/internal/apperr"
	"cchat/internal/chat"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/notice"
	"cchat/internal/pipeline"
	"cchat/internal/realtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `Type a message and press enter to send it.
  /attach <file> [caption]  send an image
  /edit <id> <text>         change one of your messages
  /delete <id>              delete one of your messages
  /refresh                  reload the history
  /quit                     leave`

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a conversation and follow it live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		manager := realtime.NewManager(realtime.WSDialer{}, env.cfg.Realtime.URL,
			realtime.WithLogger(logger.L),
			realtime.WithReconnectPacing(env.cfg.Realtime.ReconnectEvery, env.cfg.Realtime.ReconnectBurst))
		defer manager.Close()

		room := chat.NewRoom(env.api, chat.FromManager(manager), env.sess, env.uploader, env.catalog, logger.L)
		defer room.Close()

		if err := room.Activate(ctx, args[0]); err != nil {
			return env.explain(err, notice.LoadFailed)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, chatHelp)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go render(ctx, cancel, room, out)

		return readInput(ctx, room, cmd.InOrStdin(), out)
	},
}

// render prints message changes and notices until ctx ends. A notice of
// kind AuthExpired ends the chat.
func render(ctx context.Context, cancel context.CancelFunc, room *chat.Room, out io.Writer) {
	t := newTranscript()
	t.update(out, room.Messages())
	for {
		select {
		case <-ctx.Done():
			return
		case <-room.Changes():
			t.update(out, room.Messages())
		case n := <-room.Notices():
			fmt.Fprintf(out, "! %s\n", n.Text)
			if n.Kind == apperr.KindAuthExpired {
				cancel()
				return
			}
		}
	}
}

func readInput(ctx context.Context, room *chat.Room, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, room, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line. Failures are reported by the room as
// notices, so only the restored draft is printed here.
func handleLine(ctx context.Context, room *chat.Room, line string, out io.Writer) (quit bool) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
	case "/quit":
		return true
	case "/refresh":
		room.Refresh(ctx)
	case "/edit":
		id, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		room.Edit(ctx, resolveID(room.Messages(), id), text)
	case "/delete":
		room.Delete(ctx, resolveID(room.Messages(), strings.TrimSpace(rest)))
	case "/attach":
		path, caption, _ := strings.Cut(strings.TrimSpace(rest), " ")
		send(ctx, room, models.Draft{Content: caption, Attachment: path}, out)
	default:
		send(ctx, room, models.Draft{Content: line}, out)
	}
	return false
}

func send(ctx context.Context, room *chat.Room, draft models.Draft, out io.Writer) {
	res, err := room.Send(ctx, draft)
	if err == nil || res.State != pipeline.StateFailed {
		return
	}
	if res.Draft.Content != "" || res.Draft.Attachment != "" {
		fmt.Fprintf(out, "  draft kept: %q %s\n", res.Draft.Content, res.Draft.Attachment)
	}
}

// resolveID expands the short id printed in the transcript. Ambiguous or
// unknown prefixes are returned as is.
func resolveID(msgs []models.Message, prefix string) string {
	match := ""
	for _, m := range msgs {
		if m.ID == prefix {
			return prefix
		}
		if prefix != "" && strings.HasPrefix(m.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = m.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

// transcript prints only what changed between two snapshots of the
// message list.
type transcript struct {
	seen map[string]printed
}

type printed struct {
	line  string
	local bool
}

func newTranscript() *transcript {
	return &transcript{seen: map[string]printed{}}
}

func (t *transcript) update(out io.Writer, msgs []models.Message) {
	current := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		current[m.ID] = true
		line := formatMessage(m)
		prev, known := t.seen[m.ID]
		switch {
		case !known:
			fmt.Fprintln(out, line)
		case prev.line != line:
			fmt.Fprintln(out, line+" (edited)")
		}
		t.seen[m.ID] = printed{line: line, local: m.IsLocal}
	}
	// A local message disappears when it is confirmed or rolled back.
	for id, p := range t.seen {
		if current[id] {
			continue
		}
		if !p.local {
			fmt.Fprintln(out, p.line+" (deleted)")
		}
		delete(t.seen, id)
	}
}

func formatMessage(m models.Message) string {
	name := m.Sender.Name
	if m.IsMe {
		name = "you"
	}
	text := m.Content
	if m.HasAttachment() {
		text = strings.TrimSpace(text + " [" + *m.Attachment + "]")
	}
	id := m.ID
	if len(id) > 8 {
		id = id[:8]
	}
	status := ""
	if m.IsLocal {
		status = " …"
	}
	return fmt.Sprintf("[%s] %s %s: %s%s", m.ShortTime(nil), id, name, text, status)
}
