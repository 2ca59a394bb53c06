package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change routing settings",
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			s := app.router.Settings()
			cmd.Printf("preferred provider: %s\n", s.PreferredProvider)
			cmd.Printf("auto fallback:      %t\n", s.AutoFallback)
			keyState := "not set"
			if s.CloudAPIKey != "" {
				keyState = "set"
			}
			cmd.Printf("cloud API key:      %s\n", keyState)
			if !s.LastUpdated.IsZero() {
				cmd.Printf("last updated:       %s\n", s.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		provider string
		fallback string
		cloudKey string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			partial := map[string]any{}
			if provider != "" {
				partial["preferredProvider"] = provider
			}
			if fallback != "" {
				switch fallback {
				case "on":
					partial["autoFallback"] = true
				case "off":
					partial["autoFallback"] = false
				default:
					return fmt.Errorf("--fallback must be on or off, got %q", fallback)
				}
			}
			if cmd.Flags().Changed("cloud-key") {
				partial["cloudApiKey"] = cloudKey
			}
			if len(partial) == 0 {
				return fmt.Errorf("nothing to change: pass --provider, --fallback, or --cloud-key")
			}

			app, err := buildApp("")
			if err != nil {
				return err
			}
			defer app.Close()

			updated, err := app.router.UpdateSettings(cmd.Context(), partial)
			if err != nil {
				return err
			}
			cmd.Printf("preferred provider: %s\n", updated.PreferredProvider)
			cmd.Printf("auto fallback:      %t\n", updated.AutoFallback)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "preferred provider (builtin, cloud)")
	cmd.Flags().StringVar(&fallback, "fallback", "", "automatic fallback (on, off)")
	cmd.Flags().StringVar(&cloudKey, "cloud-key", "", "cloud API key (empty string clears it)")
	return cmd
}
