package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalambet/rankd/internal/config"
	"github.com/kalambet/rankd/internal/rank"
)

// --- top ---

var topCmd = &cobra.Command{
	Use:   "top <category>",
	Short: "Show the most-used peers of a category",
	Long: `Show the most-used peers of a category in rank order.

Categories: correspondent, bot_pm, bot_inline, group, channel, call.

Examples:
  rankd top correspondent
  rankd top group --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := rank.ParseCategory(args[0]); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/top/%s?limit=%d", args[0], limit))
		if err != nil {
			return err
		}

		var result struct {
			Category string      `json:"category"`
			Peers    []rank.Peer `json:"peers"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Peers) == 0 {
			fmt.Println("No peers ranked yet.")
			return nil
		}
		for i, peer := range result.Peers {
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("%2d.", i+1)), peer)
		}
		return nil
	},
}

func init() {
	topCmd.Flags().Int("limit", 20, "maximum number of peers to show")
}

// --- use ---

var useCmd = &cobra.Command{
	Use:   "use <category> <peer>",
	Short: "Record a usage event for a peer",
	Long: `Record a usage event for a peer, bumping its rating in one category.

The peer is given as kind:id, e.g. user:42 or chat:-100.

Examples:
  rankd use correspondent user:42
  rankd use group chat:-100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, peer, err := parsePeerArgs(args[0], args[1])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/use", map[string]any{
			"category": category.Name(),
			"peer":     peer,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Recorded use of %s in %s", peer, category.Name())
		return nil
	},
}

// --- remove ---

var removeCmd = &cobra.Command{
	Use:   "remove <category> <peer>",
	Short: "Drop a peer from a category's ranking",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, peer, err := parsePeerArgs(args[0], args[1])
		if err != nil {
			return err
		}
		resetRemote, _ := cmd.Flags().GetBool("reset-remote")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/remove", map[string]any{
			"category":     category.Name(),
			"peer":         peer,
			"reset_remote": resetRemote,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %s from %s", peer, category.Name())
		return nil
	},
}

func init() {
	removeCmd.Flags().Bool("reset-remote", false, "also reset the rating on the sync service")
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Show the synchronization state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sync")
		if err != nil {
			return err
		}

		var status rank.Status
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		printStatus("Active", "%v", status.Active)
		printStatus("Server sync", "%s", status.ServerSync)
		printStatus("Local sync", "%s", status.LocalSync)
		if !status.LastServerSync.IsZero() {
			printStatus("Last fetch", "%s", status.LastServerSync)
		}
		printStatus("First sync seen", "%v", status.FirstSyncSeen)
		return nil
	},
}

func parsePeerArgs(categoryArg, peerArg string) (rank.Category, rank.Peer, error) {
	category, err := rank.ParseCategory(categoryArg)
	if err != nil {
		return 0, rank.Peer{}, err
	}
	peer, err := rank.ParsePeer(peerArg)
	if err != nil {
		return 0, rank.Peer{}, err
	}
	return category, peer, nil
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
