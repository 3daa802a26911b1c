// ABOUTME: gateway approve: interactive review console over the shared resolver

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/console"
	"github.com/jnun/contactcmd/internal/gateway"
	"github.com/jnun/contactcmd/internal/webhook"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Review queued messages interactively",
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

		executor := newExecutor(st)
		notifier := webhook.NewNotifier(cfg.Gateway.WebhookTimeoutParsed)
		approver := gateway.NewApprover(st, st, executor, notifier)

		return console.Run(st, approver)
	},
}
