package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider availability and features",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			preferred := app.router.Settings().PreferredProvider
			for _, st := range app.router.Status(cmd.Context()) {
				marker := " "
				if st.Name == preferred {
					marker = "*"
				}
				state := "unavailable"
				if st.Available {
					state = "available"
				}
				cmd.Printf("%s %-8s %s\n", marker, st.Name, state)
				cmd.Printf("    grammar=%t translation=%t summarization=%t rewriting=%t generation=%t chat=%t\n",
					st.Features.Grammar, st.Features.Translation, st.Features.Summarization,
					st.Features.Rewriting, st.Features.Generation, st.Features.Chat)
			}
			return nil
		},
	}
}
