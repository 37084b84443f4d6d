package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"obd2ai/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change user preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a preference: speed_source, assessment_api_key, assessment_model_id or mute_alerts",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrefsSet,
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	p := env.prefs
	p.AssessmentAPIKey = maskKey(p.AssessmentAPIKey)

	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n%s", env.prefsPath, data)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	// нечитаемый файл настроек не перезаписываем
	if env.prefsErr != nil {
		return fmt.Errorf("refusing to overwrite %s, fix or remove it first: %w", env.prefsPath, env.prefsErr)
	}

	p := env.prefs
	if err := setPreference(&p, args[0], args[1]); err != nil {
		return err
	}
	if err := prefs.Save(env.prefsPath, p); err != nil {
		return err
	}

	logger.Printf("Preference %s updated in %s", args[0], env.prefsPath)
	return nil
}

// setPreference меняет одно поле настроек по его YAML-ключу
func setPreference(p *prefs.Preferences, key, value string) error {
	switch key {
	case "speed_source":
		switch value {
		case prefs.SpeedSourceOBD2Device, prefs.SpeedSourceThisDevice:
			p.SpeedSource = value
		default:
			return fmt.Errorf("invalid speed_source %q: want %s or %s",
				value, prefs.SpeedSourceOBD2Device, prefs.SpeedSourceThisDevice)
		}
	case "assessment_api_key":
		p.AssessmentAPIKey = strings.TrimSpace(value)
	case "assessment_model_id":
		p.AssessmentModelID = strings.TrimSpace(value)
	case "mute_alerts":
		mute, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid mute_alerts %q: %w", value, err)
		}
		p.MuteAlerts = mute
	default:
		return fmt.Errorf("unknown preference %q", key)
	}
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
