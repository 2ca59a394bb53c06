package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/router"
)

// printEnvelope reports how a result was produced, then its payload.
func printEnvelope(cmd *cobra.Command, res router.Result) {
	note := res.Provider
	if res.Metadata.Fallback {
		note += " (fallback)"
	}
	if res.Metadata.Cached {
		note += " (cached)"
	}
	cmd.PrintErrf("[%s, %dms]\n", note, res.Metadata.ProcessingMS)
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Check text for grammar and spelling problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			text := strings.Join(args, " ")
			res, err := app.router.CheckGrammar(cmd.Context(), ai.DetectGrammarInput(text))
			if err != nil {
				return err
			}
			printEnvelope(cmd, res)

			corrections := res.Data.([]ai.GrammarCorrection)
			if len(corrections) == 0 {
				cmd.Println("No problems found.")
				return nil
			}
			for _, c := range corrections {
				cmd.Printf("%s: %q -> %q", c.Type, c.Error, c.Correction)
				if c.Message != "" {
					cmd.Printf("  (%s)", c.Message)
				}
				cmd.Println()
			}
			return nil
		},
	}
	return cmd
}

func newTranslateCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate text between languages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.router.Translate(cmd.Context(), strings.Join(args, " "), from, to)
			if err != nil {
				return err
			}
			printEnvelope(cmd, res)
			cmd.Println(res.Data)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "auto", "source language tag (e.g. en)")
	cmd.Flags().StringVar(&to, "to", "", "target language tag (e.g. es)")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	var (
		kind    string
		format  string
		length  string
		stream  bool
		context string
	)

	cmd := &cobra.Command{
		Use:   "summarize [content]",
		Short: "Summarize content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			content := strings.Join(args, " ")
			opts := ai.SummarizeOptions{Type: kind, Format: format, Length: length, SharedContext: context}

			var res router.Result
			if stream {
				res, err = app.router.SummarizeStream(cmd.Context(), content, opts, streamPrinter(cmd))
				cmd.Println()
			} else {
				res, err = app.router.Summarize(cmd.Context(), content, opts)
			}
			if err != nil {
				return err
			}
			printEnvelope(cmd, res)
			if !stream {
				cmd.Println(res.Data)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "type", "key-points", "summary type (key-points, tldr, teaser, headline)")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format (markdown, plain-text)")
	cmd.Flags().StringVar(&length, "length", "medium", "summary length (short, medium, long)")
	cmd.Flags().StringVar(&context, "context", "", "shared context for the summarizer")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream output as it is generated")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	var (
		tone    string
		length  string
		stream  bool
		context string
	)

	cmd := &cobra.Command{
		Use:   "rewrite [text]",
		Short: "Rewrite text with a different tone or length",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			text := strings.Join(args, " ")
			opts := ai.RewriteOptions{Tone: tone, Length: length, SharedContext: context}

			var res router.Result
			if stream {
				res, err = app.router.RewriteStream(cmd.Context(), text, opts, streamPrinter(cmd))
				cmd.Println()
			} else {
				res, err = app.router.Rewrite(cmd.Context(), text, opts)
			}
			if err != nil {
				return err
			}
			printEnvelope(cmd, res)
			if !stream {
				cmd.Println(res.Data)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tone, "tone", "as-is", "rewrite tone (as-is, more-formal, more-casual)")
	cmd.Flags().StringVar(&length, "length", "as-is", "rewrite length (as-is, shorter, longer)")
	cmd.Flags().StringVar(&context, "context", "", "shared context for the rewriter")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream output as it is generated")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		tone   string
		format string
		length string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate text from a writing prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			prompt := strings.Join(args, " ")
			opts := ai.GenerateOptions{Tone: tone, Format: format, Length: length}

			var res router.Result
			if stream {
				res, err = app.router.GenerateStream(cmd.Context(), prompt, opts, streamPrinter(cmd))
				cmd.Println()
			} else {
				res, err = app.router.Generate(cmd.Context(), prompt, opts)
			}
			if err != nil {
				return err
			}
			printEnvelope(cmd, res)
			if !stream {
				cmd.Println(res.Data)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tone, "tone", "neutral", "writing tone (formal, neutral, casual)")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format (markdown, plain-text)")
	cmd.Flags().StringVar(&length, "length", "medium", "output length (short, medium, long)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream output as it is generated")
	return cmd
}

// streamPrinter prints only the new suffix of each accumulated chunk.
func streamPrinter(cmd *cobra.Command) ai.ChunkFunc {
	printed := 0
	return func(accumulated string) {
		if len(accumulated) > printed {
			cmd.Print(accumulated[printed:])
			printed = len(accumulated)
		}
	}
}
