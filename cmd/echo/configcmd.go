package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture"
	"github.com/Atharva-Kanherkar/echo/internal/capture/audio"
	"github.com/Atharva-Kanherkar/echo/internal/capture/clipboard"
	"github.com/Atharva-Kanherkar/echo/internal/capture/window"
	"github.com/Atharva-Kanherkar/echo/internal/config"
	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.LLM.APIKey = mask(c.LLM.APIKey)
		c.Store.RemoteKey = mask(c.Store.RemoteKey)
		c.Tokens = config.TokenConfig{
			GitHub:    mask(c.Tokens.GitHub),
			Figma:     mask(c.Tokens.Figma),
			Oura:      mask(c.Tokens.Oura),
			MasterKey: mask(c.Tokens.MasterKey),
		}
		data, err := yaml.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))

		plat := platform.Detect()
		fmt.Println(dimStyle.Render(fmt.Sprintf("# platform: %s, features: %v", plat, plat.SupportedFeatures())))

		mic := audio.New(plat)
		mic.Enabled = cfg.Sensor.AudioEnabled
		for _, st := range capture.Probe(cmd.Context(), 2*time.Second, window.New(plat), mic, clipboard.New(plat, logger)) {
			line := fmt.Sprintf("# %-9s available=%t", st.Name, st.Available)
			if st.Error != "" {
				line += " error=" + st.Error
			}
			fmt.Println(dimStyle.Render(line))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configModelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List the models served by the configured LLM provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		models, err := newClient().Models(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			models = llm.FilterModels(models, args[0])
		}
		for _, m := range models {
			line := m.String()
			if m.ID == cfg.LLM.ChatModel {
				line = headerStyle.Render(line + "  (configured)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configModelsCmd)
	rootCmd.AddCommand(configCmd)
}
