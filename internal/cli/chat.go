package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DasMonkey/mindly-core/internal/ai"
)

func newChatCmd() *cobra.Command {
	var (
		system      string
		temperature float64
		topK        int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			opts := ai.ChatOptions{System: system}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}
			if cmd.Flags().Changed("top-k") {
				opts.TopK = &topK
			}

			res, err := app.router.CreateChatSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			sessionID := res.Data.(string)
			defer app.router.DestroySession(sessionID)

			cmd.PrintErrf("chat session on %s — /quit to exit, /history to review\n", res.Provider)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				cmd.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit", line == "/exit":
					return nil
				case line == "/history":
					turns, err := app.router.SessionHistory(sessionID)
					if err != nil {
						return err
					}
					for _, t := range turns {
						cmd.Printf("%s: %s\n", t.Role, t.Content)
					}
					continue
				}

				pres, err := app.router.PromptStream(cmd.Context(), sessionID, line, streamPrinter(cmd))
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				cmd.Println()
				if pres.Metadata.Fallback {
					cmd.PrintErrf("[switched to %s]\n", pres.Provider)
				}
			}
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "system prompt for the session")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature (clamped to the runtime maximum)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "top-k sampling (clamped to the runtime maximum)")
	return cmd
}
