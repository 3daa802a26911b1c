// ABOUTME: gateway stop: terminates the running daemon via its pid file

package cli

import (
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gateway daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg.Gateway.PidFile, cfg.Gateway.LogFile)
		err = sup.Stop(10 * time.Second)
		if errors.Is(err, daemon.ErrNotRunning) {
			color.Yellow("gateway is not running")
			return nil
		}
		if err != nil {
			return err
		}

		color.Green("gateway stopped")
		return nil
	},
}
