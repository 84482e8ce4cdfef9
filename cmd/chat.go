package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/spf13/cobra"
)

// chatOptions 终端对话参数
type chatOptions struct {
	File   string
	Model  string
	APIKey string
}

var chatOpts chatOptions

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about a PDF in the terminal",
	Long: `Load a PDF and start an interactive question loop.

Commands inside the loop:
  /model <name>  switch the answer model
  /exit          quit`,
	Example: `  pdfchat chat --file report.pdf
  OPENAI_API_KEY=sk-... pdfchat chat --file report.pdf --model gpt-4`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if chatOpts.APIKey == "" {
			chatOpts.APIKey = os.Getenv("OPENAI_API_KEY")
		}

		p, err := buildPipeline(cfg, middleware.GetLogger())
		if err != nil {
			return err
		}
		defer p.Close()

		return runChat(cmd.Context(), p.controller, cmd.InOrStdin(), cmd.OutOrStdout(), chatOpts)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatOpts.File, "file", "f", "", "PDF file to load")
	chatCmd.Flags().StringVarP(&chatOpts.Model, "model", "m", "", "answer model (defaults to config)")
	chatCmd.Flags().StringVar(&chatOpts.APIKey, "api-key", "", "API key (defaults to $OPENAI_API_KEY)")
	_ = chatCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(chatCmd)
}

// runChat 加载文档后逐行读取问题并输出回答
func runChat(ctx context.Context, controller *services.SessionController, in io.Reader, out io.Writer, opts chatOptions) error {
	session := controller.NewSession()
	controller.SetCredential(session, opts.APIKey)
	if session.CredentialRequired() {
		return fmt.Errorf("%s: pass --api-key or set OPENAI_API_KEY", services.MsgCredentialRequired)
	}
	if opts.Model != "" {
		if err := controller.SelectModel(session, opts.Model); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.File, err)
	}

	fmt.Fprintf(out, "Processing %s...\n", filepath.Base(opts.File))
	doc := services.Document{Name: filepath.Base(opts.File), Data: data}
	if err := controller.LoadDocument(ctx, session, doc); err != nil {
		return err
	}
	printLastMessage(out, session)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case strings.HasPrefix(line, "/model"):
			model := strings.TrimSpace(strings.TrimPrefix(line, "/model"))
			if err := controller.SelectModel(session, model); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Using model %s\n", session.Model)
			continue
		}

		// 回答失败时错误消息已写入历史
		if _, err := controller.Ask(ctx, session, line); err != nil && !services.IsKind(err, services.KindAnswerGeneration) {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printLastMessage(out, session)
	}
}

func printLastMessage(out io.Writer, s *services.Session) {
	if len(s.Messages) == 0 {
		return
	}
	msg := s.Messages[len(s.Messages)-1]
	fmt.Fprintln(out, msg.Content)
	for _, src := range msg.Sources {
		fmt.Fprintf(out, "  [%d] %.3f %s\n", src.Position+1, src.Score, preview(src.Text, 60))
	}
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
