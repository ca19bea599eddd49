package store

import "github.com/lennartpollvogt/mochi-server/pkg/types"

// migrateRaw forward-migrates a decoded document's metadata map in place,
// filling defaults for fields introduced by later schema versions
// (spec.md §6.4). Each step bumps format_version; migration never removes or
// rewrites a field that already has a user-supplied value.
func migrateRaw(meta map[string]any) {
	version, _ := meta["format_version"].(string)
	if version == "" {
		version = "1.0"
	}

	if version == "1.0" {
		if _, ok := meta["tool_settings"]; !ok {
			meta["tool_settings"] = defaultToolSettingsRaw()
		}
		version = "1.1"
	}
	if version == "1.1" {
		if _, ok := meta["context_window_config"]; !ok {
			meta["context_window_config"] = defaultContextWindowRaw()
		}
		version = "1.2"
	}
	if version == "1.2" {
		if _, ok := meta["agent_settings"]; !ok {
			meta["agent_settings"] = defaultAgentSettingsRaw()
		}
		version = "1.3"
	}

	meta["format_version"] = version
}

func defaultToolSettingsRaw() map[string]any {
	d := types.DefaultToolSettings()
	return map[string]any{
		"enabled": d.Enabled,
		"policy":  string(d.Policy),
	}
}

func defaultContextWindowRaw() map[string]any {
	return map[string]any{
		"dynamic_enabled": false,
		"current_window":  8192,
		"manual_override": false,
	}
}

func defaultAgentSettingsRaw() map[string]any {
	d := types.DefaultAgentSettings()
	return map[string]any{
		"enabled": d.Enabled,
	}
}
