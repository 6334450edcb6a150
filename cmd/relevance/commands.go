package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillhive/relevance/internal/config"
	"github.com/skillhive/relevance/internal/scoring"
)

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func printReasons(reasons []scoring.MatchReason) {
	for _, reason := range reasons {
		fmt.Printf("    %s (+%d)\n", reason.Reason, reason.Points)
	}
}

// --- feed ---

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show the personalized feed for a user",
	Long: `Show the personalized feed for a user.

Examples:
  relevance feed --user alice
  relevance feed --user alice --limit 5 --offset 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		if user == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/feed?limit=%d&offset=%d", limit, offset)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Personalized bool `json:"personalized"`
			Items        []struct {
				ID           string                `json:"id"`
				AuthorID     string                `json:"author_id"`
				Title        string                `json:"title"`
				CreatedAt    time.Time             `json:"created_at"`
				Score        int                   `json:"score"`
				MatchReasons []scoring.MatchReason `json:"match_reasons"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Personalized {
			printWarning("No profile data for %s; showing most recent posts", user)
		}
		if len(result.Items) == 0 {
			fmt.Println("No posts found.")
			return nil
		}

		for _, item := range result.Items {
			fmt.Printf("\n%s [score: %d]\n", colorize(colorBold, item.Title), item.Score)
			fmt.Printf("  %s  by %s  %s\n",
				colorize(colorCyan, item.ID),
				item.AuthorID,
				item.CreatedAt.Format("2006-01-02 15:04"),
			)
			printReasons(item.MatchReasons)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().String("user", "", "user ID to build the feed for")
	feedCmd.Flags().Int("limit", 20, "maximum number of posts")
	feedCmd.Flags().Int("offset", 0, "number of posts to skip")
}

// --- track ---

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record a user interaction",
	Long: `Record a user interaction with a post, company, or profile.

Examples:
  relevance track --user alice --type like --target-type post --target-id p-123
  relevance track --user alice --type view --target-type company --target-id c-9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		typ, _ := cmd.Flags().GetString("type")
		targetType, _ := cmd.Flags().GetString("target-type")
		targetID, _ := cmd.Flags().GetString("target-id")

		if user == "" || typ == "" || targetType == "" || targetID == "" {
			return fmt.Errorf("--user, --type, --target-type, and --target-id are required")
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interactions", map[string]string{
			"type":        typ,
			"target_type": targetType,
			"target_id":   targetID,
		})
		if err != nil {
			return err
		}

		var result struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Success {
			printError("Interaction not recorded: %s", result.Error)
			return nil
		}
		printSuccess("Recorded %s on %s %s", typ, targetType, targetID)
		return nil
	},
}

func init() {
	trackCmd.Flags().String("user", "", "user ID performing the interaction")
	trackCmd.Flags().String("type", "", "interaction type (like, comment, view)")
	trackCmd.Flags().String("target-type", "", "target type (post, company, profile)")
	trackCmd.Flags().String("target-id", "", "target ID")
}

// --- preferences ---

var preferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Show or update a user's declared preferences",
}

var preferencesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show declared preferences as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile/preferences")
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prefs)
	},
}

var preferencesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace declared preferences",
	Long: `Replace declared preferences. The new values replace the old ones
entirely; omitted flags clear the corresponding list.

Examples:
  relevance preferences set --user alice --skills go,kubernetes --industries fintech
  relevance preferences set --user alice --companies acme-corp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		skills, _ := cmd.Flags().GetString("skills")
		industries, _ := cmd.Flags().GetString("industries")
		companies, _ := cmd.Flags().GetString("companies")

		if user == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/profile/preferences", map[string]any{
			"skills":               splitCSV(skills),
			"industries":           splitCSV(industries),
			"companies":            splitCSV(companies),
			"onboarding_completed": true,
		})
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		printSuccess("Preferences updated for %s", user)
		return nil
	},
}

func init() {
	preferencesShowCmd.Flags().String("user", "", "user ID")
	preferencesSetCmd.Flags().String("user", "", "user ID")
	preferencesSetCmd.Flags().String("skills", "", "comma-separated skills")
	preferencesSetCmd.Flags().String("industries", "", "comma-separated industries")
	preferencesSetCmd.Flags().String("companies", "", "comma-separated followed companies")
	preferencesCmd.AddCommand(preferencesShowCmd)
	preferencesCmd.AddCommand(preferencesSetCmd)
}

// --- companies ---

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies ranked for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/companies?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Personalized bool `json:"personalized"`
			Items        []struct {
				ID           string                `json:"id"`
				Name         string                `json:"name"`
				Score        int                   `json:"score"`
				MatchReasons []scoring.MatchReason `json:"match_reasons"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Items) == 0 {
			fmt.Println("No companies found.")
			return nil
		}

		for _, item := range result.Items {
			fmt.Printf("\n%s [score: %d]\n", colorize(colorBold, item.Name), item.Score)
			fmt.Printf("  %s\n", colorize(colorCyan, item.ID))
			printReasons(item.MatchReasons)
		}
		return nil
	},
}

var companiesAnalyzeCmd = &cobra.Command{
	Use:   "analyze [company-id]",
	Short: "Re-extract keywords for one company, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient("")
		if err != nil {
			return err
		}

		path := "/companies/analyze"
		if len(args) == 1 {
			path = "/companies/" + url.PathEscape(args[0]) + "/analyze"
		}

		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	companiesCmd.Flags().String("user", "", "user ID to rank companies for")
	companiesCmd.Flags().Int("limit", 20, "maximum number of companies")
	companiesCmd.AddCommand(companiesAnalyzeCmd)
}

// --- explain ---

var explainCmd = &cobra.Command{
	Use:   "explain <target-type> <target-id>",
	Short: "Explain the relevance score of a post or company for a user",
	Long: `Explain the relevance score of a post or company for a user.

Examples:
  relevance explain post p-123 --user alice
  relevance explain company c-9 --user alice`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/explain/%s/%s", url.PathEscape(args[0]), url.PathEscape(args[1]))
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			TargetType   string                `json:"target_type"`
			TargetID     string                `json:"target_id"`
			Score        int                   `json:"score"`
			MatchReasons []scoring.MatchReason `json:"match_reasons"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Printf("%s %s scores %s for %s\n",
			result.TargetType,
			colorize(colorCyan, result.TargetID),
			colorize(colorBold, fmt.Sprintf("%d", result.Score)),
			user,
		)
		if len(result.MatchReasons) == 0 {
			fmt.Println("  no matches")
			return nil
		}
		printReasons(result.MatchReasons)
		return nil
	},
}

func init() {
	explainCmd.Flags().String("user", "", "user ID to score for")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
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
			printError("%v", err)
			fmt.Println("Valid keys:")
			for _, k := range config.ValidKeys() {
				fmt.Printf("  %s\n", k)
			}
			return fmt.Errorf("config set failed")
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
