package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/atelier/internal/config"
)

var workspaceFlag string

func workspacePath(code, suffix string) string {
	return "/v1/workspace/" + url.PathEscape(code) + suffix
}

// resolveWorkspace maps the --workspace flag (possibly empty) to the
// effective code, falling back server-side to the last active one.
func resolveWorkspace(ctx context.Context, client *apiClient) (string, error) {
	resp, err := client.post(ctx, "/v1/workspace/resolve", map[string]string{"code": workspaceFlag})
	if err != nil {
		return "", err
	}
	var result struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		if strings.Contains(err.Error(), "login_required") {
			return "", fmt.Errorf("no workspace code: pass --workspace or run `atelier workspace open <code>` first")
		}
		return "", err
	}
	return result.Code, nil
}

type stageListing struct {
	Stages []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Active     bool   `json:"active"`
		Completed  bool   `json:"completed"`
		HasSummary bool   `json:"has_summary"`
	} `json:"stages"`
	Active          string `json:"active"`
	ProgressPercent int    `json:"progress_percent"`
	ProgressLabel   string `json:"progress_label"`
}

func fetchStages(ctx context.Context, client *apiClient, code string) (stageListing, error) {
	resp, err := client.get(ctx, workspacePath(code, "/stages"))
	if err != nil {
		return stageListing{}, err
	}
	var listing stageListing
	if err := decodeJSON(resp, &listing); err != nil {
		return stageListing{}, err
	}
	return listing, nil
}

func printStageListing(listing stageListing) {
	for _, s := range listing.Stages {
		marker := " "
		if s.Active {
			marker = colorize(colorCyan, "▸")
		}
		state := ""
		if s.Completed {
			state = colorize(colorGreen, " [done]")
		}
		fmt.Printf("%s %s — %s%s\n", marker, colorize(colorBold, s.ID), s.Title, state)
	}
	fmt.Printf("\n%s (%d%%)\n", listing.ProgressLabel, listing.ProgressPercent)
}

// --- workspace ---

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Open or inspect a workspace",
}

var workspaceOpenCmd = &cobra.Command{
	Use:   "open [code]",
	Short: "Open a workspace, making its code the active one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			workspaceFlag = args[0]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		printSuccess("Workspace %s", code)

		listing, err := fetchStages(cmd.Context(), client, code)
		if err != nil {
			return err
		}
		printStageListing(listing)
		return nil
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceOpenCmd)
}

// --- chat ---

var chatStageFlag string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the stage facilitator",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}

		stage := chatStageFlag
		if stage == "" {
			listing, err := fetchStages(cmd.Context(), client, code)
			if err != nil {
				return err
			}
			stage = listing.Active
		}

		message := strings.Join(args, " ")
		resp, err := client.post(cmd.Context(), workspacePath(code, "/stages/"+url.PathEscape(stage)+"/conversation"),
			map[string]string{"message": message})
		if err != nil {
			return err
		}
		var reply struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}
		fmt.Println(reply.Content)
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatStageFlag, "stage", "", "stage id (default: the active stage)")
	chatCmd.Flags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
}

// --- stage ---

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "List or select workflow stages",
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflow stages with completion state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		listing, err := fetchStages(cmd.Context(), client, code)
		if err != nil {
			return err
		}
		printStageListing(listing)
		return nil
	},
}

var stageSelectCmd = &cobra.Command{
	Use:   "select <stage>",
	Short: "Make a stage the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), workspacePath(code, "/stages/active"), map[string]string{"stage": args[0]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Active stage: %s", args[0])
		return nil
	},
}

func init() {
	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageSelectCmd)
	stageCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <stage>",
	Short: "Close a stage with a facilitator summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), workspacePath(code, "/stages/"+url.PathEscape(args[0])+"/summarize"), nil)
		if err != nil {
			return err
		}
		var rec struct {
			Summary    string `json:"summary"`
			StageTitle string `json:"stage_title"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		printSuccess("Summary saved for %s", rec.StageTitle)
		fmt.Println(rec.Summary)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
}

// --- rank ---

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank evaluation artifacts and view the decision table",
}

var rankSetCmd = &cobra.Command{
	Use:   "set <artifact> <value>",
	Short: "Assign a rank (1-7) to an artifact, empty value clears",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), workspacePath(code, "/rankings/"+url.PathEscape(args[0])),
			map[string]string{"value": value})
		if err != nil {
			return err
		}
		var pref struct {
			Label    string `json:"label"`
			RankText string `json:"rank_text"`
		}
		if err := decodeJSON(resp, &pref); err != nil {
			return err
		}
		printSuccess("%s: %s (%s)", args[0], pref.RankText, pref.Label)
		return nil
	},
}

var rankTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Show the decision table",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), workspacePath(code, "/decision-table"))
		if err != nil {
			return err
		}
		var rows []struct {
			Artifact struct {
				Title       string `json:"title"`
				Contributor string `json:"contributor"`
			} `json:"artifact"`
			Preference struct {
				Label    string `json:"label"`
				RankText string `json:"rank_text"`
			} `json:"preference"`
		}
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		for _, row := range rows {
			fmt.Printf("%-30s %-20s %-10s %s\n",
				colorize(colorBold, row.Artifact.Title), row.Artifact.Contributor,
				row.Preference.RankText, row.Preference.Label)
		}
		return nil
	},
}

func init() {
	rankCmd.AddCommand(rankSetCmd)
	rankCmd.AddCommand(rankTableCmd)
	rankCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
}

// --- evidence ---

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Attach and list supporting evidence for a stage",
}

var evidenceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Attach a text note or fetched page to a stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		pageURL, _ := cmd.Flags().GetString("url")
		caption, _ := cmd.Flags().GetString("caption")
		stage, _ := cmd.Flags().GetString("stage")

		if text == "" && pageURL == "" {
			return fmt.Errorf("one of --text or --url is required")
		}
		if stage == "" {
			return fmt.Errorf("--stage is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}

		body := map[string]string{"caption": caption}
		if pageURL != "" {
			body["url"] = pageURL
		} else {
			body["content"] = text
		}
		resp, err := client.post(cmd.Context(), workspacePath(code, "/stages/"+url.PathEscape(stage)+"/evidence"), body)
		if err != nil {
			return err
		}
		var note struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		}
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}
		printSuccess("Attached %s note %s", note.Kind, note.ID)
		return nil
	},
}

var evidenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence notes for a stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, _ := cmd.Flags().GetString("stage")
		if stage == "" {
			return fmt.Errorf("--stage is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), workspacePath(code, "/stages/"+url.PathEscape(stage)+"/evidence"))
		if err != nil {
			return err
		}
		var notes []struct {
			Kind      string `json:"kind"`
			Caption   string `json:"caption"`
			Content   string `json:"content"`
			SourceURL string `json:"source_url"`
		}
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Println("no evidence recorded")
			return nil
		}
		for _, n := range notes {
			header := n.Caption
			if header == "" {
				header = "(untitled)"
			}
			fmt.Printf("%s [%s]\n", colorize(colorBold, header), n.Kind)
			if n.SourceURL != "" {
				fmt.Printf("  %s\n", n.SourceURL)
			}
			content := n.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			fmt.Printf("  %s\n", content)
		}
		return nil
	},
}

func init() {
	evidenceAddCmd.Flags().String("text", "", "text content to attach")
	evidenceAddCmd.Flags().String("url", "", "URL to fetch and attach")
	evidenceAddCmd.Flags().String("caption", "", "caption for the note")
	evidenceCmd.PersistentFlags().String("stage", "", "stage id")
	evidenceCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
	evidenceCmd.AddCommand(evidenceAddCmd)
	evidenceCmd.AddCommand(evidenceListCmd)
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the full workspace report: stage summaries and decision table",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		listing, err := fetchStages(cmd.Context(), client, code)
		if err != nil {
			return err
		}

		type stageSummary struct {
			order   int
			title   string
			summary string
		}
		summaries := make([]*stageSummary, len(listing.Stages))

		g, ctx := errgroup.WithContext(cmd.Context())
		for i, s := range listing.Stages {
			if !s.HasSummary {
				continue
			}
			g.Go(func() error {
				resp, err := client.get(ctx, workspacePath(code, "/stages/"+url.PathEscape(s.ID)+"/summary"))
				if err != nil {
					return err
				}
				var rec struct {
					Summary    string `json:"summary"`
					StageTitle string `json:"stage_title"`
				}
				if err := decodeJSON(resp, &rec); err != nil {
					return err
				}
				summaries[i] = &stageSummary{order: i, title: rec.StageTitle, summary: rec.Summary}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var collected []*stageSummary
		for _, s := range summaries {
			if s != nil {
				collected = append(collected, s)
			}
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].order < collected[j].order })

		fmt.Fprintf(os.Stdout, "%s\n\n", colorize(colorBold, "Workspace report: "+code))
		if len(collected) == 0 {
			fmt.Println("no stage summaries recorded yet")
		}
		for _, s := range collected {
			fmt.Printf("%s\n%s\n\n", colorize(colorBold, s.title), s.summary)
		}

		return rankTableCmd.RunE(cmd, nil)
	},
}

func init() {
	reportCmd.Flags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
}

// --- provider ---

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage the workspace completion provider and API keys",
}

var providerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active provider and whether it has a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), workspacePath(code, "/provider"))
		if err != nil {
			return err
		}
		var result struct {
			Provider string `json:"provider"`
			HasKey   bool   `json:"has_key"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printStatus("Provider", "%s", result.Provider)
		if result.HasKey {
			printStatus("API key", "configured")
		} else {
			printStatus("API key", "missing")
		}
		return nil
	},
}

var providerSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Set the active provider for the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), workspacePath(code, "/provider"), map[string]string{"provider": args[0]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Provider set to %s", args[0])
		return nil
	},
}

var providerKeyCmd = &cobra.Command{
	Use:   "key <provider> <api-key>",
	Short: "Store an API key for a provider in this workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		code, err := resolveWorkspace(cmd.Context(), client)
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), workspacePath(code, "/keys/"+url.PathEscape(args[0])),
			map[string]string{"key": args[1]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Stored key for %s", args[0])
		return nil
	},
}

func init() {
	providerCmd.AddCommand(providerShowCmd)
	providerCmd.AddCommand(providerSetCmd)
	providerCmd.AddCommand(providerKeyCmd)
	providerCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace code")
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
