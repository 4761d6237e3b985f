package config

import (
	"runtime"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	Home       string
	LogFile    string
	ConfigPath string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			Home:       `C:\ProgramData\FactAgent`,
			LogFile:    `C:\ProgramData\FactAgent\factagent.log`,
			ConfigPath: `C:\ProgramData\FactAgent\config.yaml`,
		}
	case "freebsd":
		return PlatformDefaults{
			Home:       "/var/db/factagent",
			LogFile:    "/var/log/factagent/factagent.log",
			ConfigPath: "/usr/local/etc/factagent/config.yaml",
		}
	default:
		// Linux and anything unknown
		return PlatformDefaults{
			Home:       "/var/lib/factagent",
			LogFile:    "/var/log/factagent/factagent.log",
			ConfigPath: "/etc/factagent/config.yaml",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// UpdateConfigDefaults updates viper defaults with platform-specific values
// This should be called from setDefaults() in config.go
func UpdateConfigDefaults(v interface{}) {
	type viper interface {
		SetDefault(key string, value interface{})
	}

	if viperInstance, ok := v.(viper); ok {
		defaults := GetPlatformDefaults()

		viperInstance.SetDefault("home", defaults.Home)
		viperInstance.SetDefault("logging.file", defaults.LogFile)
	}
}
