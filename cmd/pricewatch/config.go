package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modoterra/pricewatch/pkg/config"
	"github.com/modoterra/pricewatch/pkg/config/presets"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check and show pricewatch.yaml",
}

var (
	configInitRoot   string
	configInitOutput string
)

var configInitCmd = &cobra.Command{
	Use:   "init [preset]",
	Short: "Generate a pricewatch.yaml",
	Long:  "Available presets: python",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch preset := args[0]; preset {
		case "python":
			cfg, err := presets.GeneratePython(configInitRoot)
			if err != nil {
				return err
			}
			if err := config.Save(cfg, configInitOutput); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %s\n", configInitOutput)
			fmt.Fprintf(out, "  worker.path:   %s\n", orNone(cfg.Worker.Path))
			fmt.Fprintf(out, "  worker.script: %s\n", orNone(cfg.Worker.Script))
			fmt.Fprintf(out, "  worker.config: %s\n", orNone(cfg.Worker.Config))
			if missing := cfg.Worker.Missing(); len(missing) > 0 {
				fmt.Fprintf(out, "warning: the main worker stays disabled until %v are set\n", missing)
			}
			return nil
		default:
			return fmt.Errorf("unknown preset: %s (available: python)", preset)
		}
	},
}

func orNone(s string) string {
	if s == "" {
		return "(not found)"
	}
	return s
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a pricewatch.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		name := cfg.File
		if name == "" {
			name = "defaults"
		}

		errs := config.Validate(cfg)
		if len(errs) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", name, len(errs))
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
			}
			return fmt.Errorf("%s: invalid", name)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", name)
		if missing := cfg.Worker.Missing(); len(missing) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  note: main worker disabled, missing %v\n", missing)
		}
		return nil
	},
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		if cfg.File != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.File)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func defaultConfigOutput() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pricewatch", config.FileName+".yaml")
	}
	return config.FileName + ".yaml"
}

func init() {
	configInitCmd.Flags().StringVar(&configInitRoot, "root", ".", "scraper checkout directory")
	configInitCmd.Flags().StringVar(&configInitOutput, "output", defaultConfigOutput(), "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPrintCmd)
	rootCmd.AddCommand(configCmd)
}
