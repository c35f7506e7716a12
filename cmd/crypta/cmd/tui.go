package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/client"
	"github.com/cryptadb/crypta/internal/tui"
)

var allowInsecure bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal browser",
	Long: `Open the interactive terminal browser against the configured gateway.

The browser shows the faceted filter sidebar, the statistics panel, and
the result grid for people and locations.

Navigation:
  Tab         Switch pane (tree / stats / grid)
  ↑/k, ↓/j    Move up/down
  Enter/Space Toggle filter or expand group
  b           Switch base (people / locations)
  c           Clear all filters
  /           Search the sidebar
  v           Choose visible columns
  s           Global name search
  m           Compose email to the filtered set
  e           Export the visible grid (CSV, XLSX, PDF)
  q           Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("the tui requires an interactive terminal")
		}

		api, err := client.New(client.Config{
			URL:           cfg.Remote.URL,
			AllowInsecure: allowInsecure,
			Timeout:       time.Duration(cfg.Remote.Timeout) * time.Second,
			TokenPath:     cfg.TokensPath(),
		})
		if err != nil {
			return fmt.Errorf("create gateway client: %w", err)
		}

		p := tea.NewProgram(tui.New(api), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().BoolVar(&allowInsecure, "allow-insecure", false, "allow plain HTTP to non-local gateways")
}
