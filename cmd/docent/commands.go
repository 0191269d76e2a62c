package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Ask a question about the indexed documents.

Examples:
  docent ask "What is the annual deductible?"
  docent ask --session 2f1c... "And for ward class A?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if sessionID == "" {
			resp, err := client.post(ctx, "/sessions", nil)
			if err != nil {
				return err
			}
			var created struct {
				SessionID string `json:"session_id"`
			}
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			sessionID = created.SessionID
		}

		resp, err := client.post(ctx, "/sessions/"+sessionID+"/turns", map[string]string{
			"query": question,
		})
		if err != nil {
			return err
		}

		var turn struct {
			Answer    string `json:"answer"`
			Fragments []struct {
				Text      string `json:"text"`
				Citations []struct {
					Ref   int    `json:"ref"`
					Quote string `json:"quote"`
				} `json:"citations"`
			} `json:"fragments"`
			Insufficient bool `json:"insufficient"`
		}
		if err := decodeJSON(resp, &turn); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, turn.Answer)
		if !turn.Insufficient {
			seen := map[int]bool{}
			printed := false
			for _, f := range turn.Fragments {
				for _, c := range f.Citations {
					if seen[c.Ref] {
						continue
					}
					seen[c.Ref] = true
					if !printed {
						fmt.Fprintln(os.Stdout, "\nSources:")
						printed = true
					}
					printSource(c.Ref, c.Quote)
				}
			}
		}
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "continue an existing session")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index documents into the corpus",
	Long: `Index documents into the corpus.

Examples:
  docent ingest paper.pdf
  docent ingest --tags insurance,policy wording.pdf appendix.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		tags := parseTags(tagsStr)

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var failed int
		for _, file := range args {
			abs, err := filepath.Abs(file)
			if err != nil {
				printError("%s: %v", file, err)
				failed++
				continue
			}

			req := map[string]any{"path": abs}
			if len(tags) > 0 {
				req["tags"] = tags
			}
			resp, err := client.post(ctx, "/ingest", req)
			if err != nil {
				return err
			}

			var report struct {
				DocumentID string `json:"document_id"`
				Title      string `json:"title"`
				Chunks     int    `json:"chunks"`
			}
			if err := decodeJSON(resp, &report); err != nil {
				printError("%s: %v", file, err)
				failed++
				continue
			}
			printSuccess("Indexed %q as %s (%d chunks)", report.Title, report.DocumentID, report.Chunks)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var tags []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-32s %-36s %s\n", info.Key, info.EnvVar, info.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
