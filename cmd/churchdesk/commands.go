package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalambet/churchdesk/internal/api"
	"github.com/kalambet/churchdesk/internal/config"
	"github.com/kalambet/churchdesk/internal/forms"
)

// --- forms ---

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Manage published forms",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List forms with their response counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/admin/forms")
		if err != nil {
			return err
		}
		var list []api.FormSummary
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No forms published yet.")
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, f := range list {
			status := "active"
			if !f.Active {
				status = "inactive"
			}
			rows = append(rows, []string{
				f.ID,
				f.Title,
				status,
				strconv.Itoa(f.Fields),
				strconv.Itoa(f.Responses),
				f.CreatedAt.String(),
			})
		}
		printTable(os.Stdout, []string{"ID", "Title", "Status", "Fields", "Responses", "Created"}, rows)
		return nil
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a form definition as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/admin/forms/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var schema forms.Schema
		if err := decodeJSON(resp, &schema); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(schema)
	},
}

var formsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Publish a form from a YAML or JSON definition",
	Long: `Publish a form from a YAML or JSON definition ("-" reads stdin).

Example definition:
  title: Retiro de Jovens
  description: Inscrições abertas até sexta
  fields:
    - kind: texto
      label: Nome completo
      required: true
    - kind: opcoes
      label: Camiseta
      choices: P, M, G
    - kind: checkbox
      label: Autorização dos pais
      required: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening definition: %w", err)
			}
			defer f.Close()
			in = f
		}

		// Validate locally first so mistakes are reported without a server round trip.
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading definition: %w", err)
		}
		def, err := forms.ParseDefinition(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if _, err := def.Draft(forms.SystemClock); err != nil {
			return err
		}

		printStep("Publishing %q (%d fields)", def.Title, len(def.Fields))
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.doRaw(cmd.Context(), http.MethodPost, "/admin/forms", "application/yaml", bytes.NewReader(data))
		if err != nil {
			return err
		}
		var result api.PublishResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Published %q as %s", def.Title, result.ID)
		printStatus("Link", "%s", result.Link)
		return nil
	},
}

var formsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a form (its responses are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes form %s. Use --confirm to proceed.", args[0])
			return nil
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/admin/forms/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := expectNoContent(resp); err != nil {
			return err
		}
		printSuccess("Deleted form %s", args[0])
		return nil
	},
}

func setActiveCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/admin/forms/"+url.PathEscape(args[0])+"/"+action, nil)
			if err != nil {
				return err
			}
			if err := expectNoContent(resp); err != nil {
				return err
			}
			printSuccess("Form %s %sd", args[0], action)
			return nil
		},
	}
}

var formsLinkCmd = &cobra.Command{
	Use:   "link <id>",
	Short: "Print the public link of a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println(cfg.FormLink(args[0]))
		return nil
	},
}

func init() {
	formsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	formsCmd.AddCommand(formsListCmd)
	formsCmd.AddCommand(formsShowCmd)
	formsCmd.AddCommand(formsImportCmd)
	formsCmd.AddCommand(formsDeleteCmd)
	formsCmd.AddCommand(setActiveCmd("activate", "Accept responses for a form again", "activate"))
	formsCmd.AddCommand(setActiveCmd("deactivate", "Stop accepting responses for a form", "deactivate"))
	formsCmd.AddCommand(formsLinkCmd)
}

// --- responses ---

var responsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "Inspect and export submitted responses",
}

var responsesListCmd = &cobra.Command{
	Use:   "list <form-id>",
	Short: "List a form's responses, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/admin/forms/"+url.PathEscape(args[0])+"/responses")
		if err != nil {
			return err
		}
		var rs []forms.Response
		if err := decodeJSON(resp, &rs); err != nil {
			return err
		}
		if len(rs) == 0 {
			fmt.Println("No responses yet.")
			return nil
		}
		if limit > 0 && len(rs) > limit {
			rs = rs[:limit]
		}

		for _, r := range rs {
			fmt.Printf("\n%s  %s\n", colorize(colorBold, r.SubmittedAt.String()), colorize(colorCyan, r.ID))
			for _, label := range r.Answers.Labels() {
				v, _ := r.Answers.Get(label)
				fmt.Printf("  %s: %s\n", label, forms.FormatValue(v))
			}
		}
		return nil
	},
}

var responsesExportCmd = &cobra.Command{
	Use:   "export <form-id>",
	Short: "Export a form's responses as CSV or TSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/admin/forms/" + url.PathEscape(args[0]) + "/export?format=" + url.QueryEscape(format)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return serverError(resp)
		}

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		if output != "" {
			printSuccess("Responses exported to %s", output)
		}
		return nil
	},
}

func init() {
	responsesListCmd.Flags().Int("limit", 20, "maximum number of responses to list")
	responsesExportCmd.Flags().String("format", forms.FormatCSV, "export format: csv or tsv")
	responsesExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	responsesCmd.AddCommand(responsesListCmd)
	responsesCmd.AddCommand(responsesExportCmd)
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
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
