package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	dialog "github.com/volcvoice/dialog-go-sdk"
)

// fileConfig is the TOML shape of a dialogctl config file. Credentials can
// be kept out of the file and supplied via MODEL_REALTIME_APP_ID and
// MODEL_REALTIME_ACCESS_KEY instead.
type fileConfig struct {
	Endpoint   string `toml:"endpoint"`
	AppID      string `toml:"app_id"`
	AccessKey  string `toml:"access_key"`
	ResourceID string `toml:"resource_id"`

	Speaker       string `toml:"speaker"`
	BotName       string `toml:"bot_name"`
	SystemRole    string `toml:"system_role"`
	SpeakingStyle string `toml:"speaking_style"`

	InputMode   string `toml:"input_mode"`
	RecvTimeout int    `toml:"recv_timeout"`
}

// loadConfig reads the optional TOML file, layers env credentials on top,
// and validates the result.
func loadConfig(path string) (dialog.Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return dialog.Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, &fc); err != nil {
			return dialog.Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}

	if v := os.Getenv("MODEL_REALTIME_APP_ID"); v != "" {
		fc.AppID = v
	}
	if v := os.Getenv("MODEL_REALTIME_ACCESS_KEY"); v != "" {
		fc.AccessKey = v
	}
	if v := os.Getenv("MODEL_REALTIME_API_BASE"); v != "" {
		fc.Endpoint = v
	}
	if v := os.Getenv("MODEL_REALTIME_TTS_SPEAKER"); v != "" {
		fc.Speaker = v
	}

	if fc.Endpoint == "" {
		return dialog.Config{}, fmt.Errorf("endpoint not configured (set endpoint in the config file or MODEL_REALTIME_API_BASE)")
	}
	if fc.AppID == "" || fc.AccessKey == "" {
		return dialog.Config{}, fmt.Errorf("credentials not configured (app_id and access_key, or the MODEL_REALTIME_* env vars)")
	}

	return dialog.Config{
		Endpoint:      fc.Endpoint,
		AppID:         fc.AppID,
		AccessKey:     fc.AccessKey,
		ResourceID:    fc.ResourceID,
		Speaker:       fc.Speaker,
		BotName:       fc.BotName,
		SystemRole:    fc.SystemRole,
		SpeakingStyle: fc.SpeakingStyle,
		InputMode:     fc.InputMode,
		RecvTimeout:   fc.RecvTimeout,
	}, nil
}
