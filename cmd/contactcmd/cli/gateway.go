// ABOUTME: The gateway command group: daemon lifecycle, review, history, key admin

package cli

import (
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run and manage the communication gateway",
}

func init() {
	gatewayCmd.AddCommand(startCmd)
	gatewayCmd.AddCommand(stopCmd)
	gatewayCmd.AddCommand(statusCmd)
	gatewayCmd.AddCommand(approveCmd)
	gatewayCmd.AddCommand(historyCmd)
	gatewayCmd.AddCommand(keysCmd)
}
