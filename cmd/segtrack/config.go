package main

import (
	"fmt"
	"os"

	"github.com/getcharzp/go-segtrack/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the JSON configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration (defaults, file and flags) to a JSON file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "segtrack.json"
		if len(args) == 1 {
			path = args[0]
		}
		if err := writeConfig(path, cfg, configForce); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// writeConfig 保存配置, 除非 force 否则不覆盖已有文件
func writeConfig(path string, c *config.Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("配置文件 %s 已存在, 使用 --force 覆盖", path)
		}
	}
	return c.Save(path)
}
