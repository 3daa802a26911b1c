// ABOUTME: gateway keys: create, list, revoke, webhook, and allowlist management
// ABOUTME: Plaintext keys are printed exactly once at creation

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/keys"
	"github.com/jnun/contactcmd/internal/store"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage gateway API keys",
}

var keysAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a new API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		g, err := keys.Generate()
		if err != nil {
			return err
		}

		key := &store.ApiKey{
			Name:             args[0],
			KeyHash:          g.Hash,
			KeyPrefix:        g.DisplayPrefix,
			RateLimitPerHour: cfg.Gateway.DefaultRateLimitPerHour,
			RateLimitPerDay:  cfg.Gateway.DefaultRateLimitPerDay,
		}
		if err := st.CreateKey(context.Background(), key); err != nil {
			return err
		}

		color.Green("created key %q", key.Name)
		fmt.Printf("\n  %s\n\n", color.New(color.Bold).Sprint(g.Plaintext))
		color.Yellow("store this key now; it cannot be shown again")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		all, err := st.ListKeys(context.Background())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("no keys")
			return nil
		}

		fmt.Printf("%-14s %-13s %-9s %-17s %s\n",
			"NAME", "PREFIX", "STATE", "LAST USED", "LIMITS")
		for _, k := range all {
			state := color.GreenString("active")
			if k.Revoked() {
				state = color.RedString("revoked")
			}
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%-14s %-13s %-9s %-17s %d/hr %d/day\n",
				truncateText(k.Name, 14), k.KeyPrefix, state, lastUsed,
				k.RateLimitPerHour, k.RateLimitPerDay)
		}
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Permanently revoke an API key",
	Long:  "Revoke a key by id prefix or display prefix (e.g. gw_1a2b3c4d). Revocation cannot be undone.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		key, err := resolveKey(ctx, st, args[0])
		if err != nil {
			return err
		}
		if key.Revoked() {
			color.Yellow("key %q is already revoked", key.Name)
			return nil
		}
		if err := st.RevokeKey(ctx, key.ID); err != nil {
			return err
		}
		color.Green("revoked key %q (%s)", key.Name, key.KeyPrefix)
		return nil
	},
}

var webhookRemove bool

var keysWebhookCmd = &cobra.Command{
	Use:   "webhook <key> [url]",
	Short: "Show, set, or remove a key's webhook URL",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		key, err := resolveKey(ctx, st, args[0])
		if err != nil {
			return err
		}

		if webhookRemove {
			if err := st.SetWebhook(ctx, key.ID, ""); err != nil {
				return err
			}
			color.Green("removed webhook for %q", key.Name)
			return nil
		}

		if len(args) == 1 {
			if key.WebhookURL == "" {
				fmt.Printf("%q has no webhook configured\n", key.Name)
			} else {
				fmt.Printf("%s\n", key.WebhookURL)
			}
			return nil
		}

		url := args[1]
		if err := st.SetWebhook(ctx, key.ID, url); err != nil {
			return err
		}
		color.Green("webhook for %q set to %s", key.Name, url)
		return nil
	},
}

var keysAllowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Manage a key's recipient allowlist",
}

var allowlistSetCmd = &cobra.Command{
	Use:   "set <key> <pattern>",
	Short: "Add a recipient pattern (exact address or *@domain)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		key, err := resolveKey(ctx, st, args[0])
		if err != nil {
			return err
		}

		added, err := st.AddAllowlistEntry(ctx, &store.AllowlistEntry{
			ApiKeyID: key.ID, RecipientPattern: args[1],
		})
		if err != nil {
			return err
		}
		if !added {
			color.Yellow("pattern %q already on %q's allowlist", args[1], key.Name)
			return nil
		}
		color.Green("added %q to %q's allowlist", args[1], key.Name)
		return nil
	},
}

var allowlistListCmd = &cobra.Command{
	Use:   "list <key>",
	Short: "Show a key's allowlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		key, err := resolveKey(ctx, st, args[0])
		if err != nil {
			return err
		}

		entries, err := st.ListAllowlist(ctx, key.ID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("%q has no allowlist; all recipients are permitted\n", key.Name)
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  (added %s)\n", e.RecipientPattern,
				e.CreatedAt.Local().Format(time.DateOnly))
		}
		return nil
	},
}

var allowlistRemoveCmd = &cobra.Command{
	Use:   "remove <key> <pattern>",
	Short: "Remove a recipient pattern",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		key, err := resolveKey(ctx, st, args[0])
		if err != nil {
			return err
		}

		removed, err := st.RemoveAllowlistEntry(ctx, key.ID, args[1])
		if err != nil {
			return err
		}
		if !removed {
			color.Yellow("pattern %q was not on %q's allowlist", args[1], key.Name)
			return nil
		}
		color.Green("removed %q from %q's allowlist", args[1], key.Name)
		return nil
	},
}

func init() {
	keysWebhookCmd.Flags().BoolVar(&webhookRemove, "remove", false, "remove the webhook")

	keysAllowlistCmd.AddCommand(allowlistSetCmd)
	keysAllowlistCmd.AddCommand(allowlistListCmd)
	keysAllowlistCmd.AddCommand(allowlistRemoveCmd)

	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	keysCmd.AddCommand(keysWebhookCmd)
	keysCmd.AddCommand(keysAllowlistCmd)
}
