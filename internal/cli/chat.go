package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/clinicbot/internal/assistant"
	"github.com/soyeahso/clinicbot/internal/rag"
)

const chatHelp = `Commands:
  /upload FILE...  add documents to the conversation
  /reset           start over
  /quit            leave`

func newChatCmd() *cobra.Command {
	var docs []string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Book an appointment interactively in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			r := &repl{
				assistant:      eng.assistant,
				conversationID: "cli-" + uuid.New().String(),
				out:            cmd.OutOrStdout(),
			}
			if len(docs) > 0 {
				r.upload(ctx, docs)
			}
			return r.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringSliceVar(&docs, "doc", nil, "document to upload before the first turn (repeatable)")
	return cmd
}

// repl is a terminal conversation with the assistant.
type repl struct {
	assistant      *assistant.Assistant
	conversationID string
	out            io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, "clinicbot: type a message, or /help.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, chatHelp)
		case "/reset":
			if err := r.assistant.Reset(ctx, r.conversationID); err != nil {
				fmt.Fprintf(r.out, "reset failed: %v\n", err)
				continue
			}
			fmt.Fprintln(r.out, "Conversation cleared.")
		case "/upload":
			files := strings.Fields(rest)
			if len(files) == 0 {
				fmt.Fprintln(r.out, "usage: /upload FILE...")
				continue
			}
			r.upload(ctx, files)
		default:
			reply := r.assistant.Chat(ctx, r.conversationID, "cli", line)
			fmt.Fprintln(r.out, reply.Text)
		}
	}
}

func (r *repl) upload(ctx context.Context, names []string) {
	files, err := readDocuments(names)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	res, err := r.assistant.Upload(ctx, r.conversationID, "cli", files)
	printSkipped(r.out, res)
	if err != nil {
		fmt.Fprintf(r.out, "upload failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, res.Reply.Text)
}

// readDocuments loads files from disk, guessing their type from the
// extension.
func readDocuments(names []string) ([]rag.File, error) {
	files := make([]rag.File, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		files = append(files, rag.File{
			Name:     filepath.Base(name),
			MimeType: mime.TypeByExtension(filepath.Ext(name)),
			Data:     data,
		})
	}
	return files, nil
}

func printSkipped(w io.Writer, res *assistant.UploadResult) {
	if res == nil || len(res.Skipped) == 0 {
		return
	}
	names := make([]string, 0, len(res.Skipped))
	for name := range res.Skipped {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "skipped %s: %s\n", name, res.Skipped[name])
	}
}
