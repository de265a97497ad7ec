package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/hostinfo"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon's telemetry snapshot",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("listen", "", "telemetry listen address to query (defaults to the configured value)")
	statusCmd.Flags().String("timezone", "", "IANA timezone for the local status block (defaults to system local time)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	configDir, _ := cmd.Flags().GetString("config-dir")
	listen, _ := cmd.Flags().GetString("listen")
	timezone, _ := cmd.Flags().GetString("timezone")

	fmt.Println(hostinfo.Summary(timezone))
	fmt.Println()

	if listen == "" {
		cfgPath, err := config.FindConfig(configPath, configDir)
		if err != nil {
			return newConfigError(err)
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return newConfigError(err)
		}
		listen = cfg.Telemetry.Listen
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + listen + "/api/snapshot")
	if err != nil {
		return fmt.Errorf("query %s: %w", listen, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s responded %s: %s", listen, resp.Status, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}
