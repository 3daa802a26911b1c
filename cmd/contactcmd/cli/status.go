// ABOUTME: gateway status: pid file check plus a health probe over HTTP

package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg.Gateway.PidFile, cfg.Gateway.LogFile)
		pid, running := sup.Status()
		if !running {
			color.Red("gateway is not running")
			return nil
		}

		color.Green("gateway running (pid %d)", pid)

		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/gateway/health", cfg.Server.Port))
		if err != nil {
			color.Yellow("process alive but health probe failed: %v", err)
			return nil
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Status       string `json:"status"`
				UptimeSecs   int64  `json:"uptime_secs"`
				PendingCount int64  `json:"pending_count"`
				Version      string `json:"version"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			color.Yellow("process alive but health response unreadable: %v", err)
			return nil
		}

		fmt.Printf("  version:  %s\n", body.Data.Version)
		fmt.Printf("  uptime:   %s\n", (time.Duration(body.Data.UptimeSecs) * time.Second).String())
		fmt.Printf("  pending:  %d\n", body.Data.PendingCount)
		return nil
	},
}
