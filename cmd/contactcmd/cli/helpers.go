// ABOUTME: Shared CLI helpers: config loading, store access, key reference resolution

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jnun/contactcmd/internal/config"
	"github.com/jnun/contactcmd/internal/delivery"
	"github.com/jnun/contactcmd/internal/store"
)

// loadConfig reads the YAML config and applies viper flag/env overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".contactcmd", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if port := viper.GetInt("server.port"); port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Database.Path)
}

// newExecutor builds the delivery executor with a sender for every channel
// the queue accepts.
func newExecutor(qs store.QueueStore) *delivery.Executor {
	ex := delivery.NewExecutor(qs)
	ex.Register(store.ChannelEmail, &delivery.SendmailSender{})
	ex.Register(store.ChannelSMS, &delivery.SMSSender{})
	ex.Register(store.ChannelIMessage, &delivery.IMessageSender{})
	return ex
}

// resolveKey finds one key by an id prefix or the display key prefix.
// Ambiguous references fail with the candidate list.
func resolveKey(ctx context.Context, st store.KeyStore, ref string) (*store.ApiKey, error) {
	if ref == "" {
		return nil, fmt.Errorf("key reference is required")
	}

	all, err := st.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*store.ApiKey
	for _, k := range all {
		if strings.HasPrefix(k.ID, ref) || strings.HasPrefix(k.KeyPrefix, ref) {
			matches = append(matches, k)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no key matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		var names []string
		for _, k := range matches {
			names = append(names, fmt.Sprintf("%s (%s)", k.Name, k.KeyPrefix))
		}
		return nil, fmt.Errorf("ambiguous key reference %q matches: %s",
			ref, strings.Join(names, ", "))
	}
}

// truncateText cuts on rune boundaries so multi-byte characters never
// render as invalid UTF-8.
func truncateText(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
