package backend

import (
	"fmt"
	"regexp"
	"time"

	"envelopes/internal/config"
	"envelopes/internal/core"
)

const maxDatabaseNameLength = 63

var databaseNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Config holds what the connection manager needs to open the ledger.
type Config struct {
	Mode Mode

	// Local
	LocalPath string

	// Remote
	RemoteDatabase string
	RemoteToken    string

	// Reset drops and recreates the primary namespace's tables on connect.
	Reset          bool
	ConnectTimeout time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, core.Errorf(core.KindConfiguration, "app config is nil")
	}

	return Config{
		Mode:           ParseMode(appConfig.DatabaseMode),
		LocalPath:      appConfig.DatabaseFile,
		RemoteDatabase: appConfig.RemoteDatabase,
		RemoteToken:    appConfig.RemoteToken,
		Reset:          appConfig.ResetOnStart,
		ConnectTimeout: appConfig.ConnectTimeout,
	}, nil
}

// Validate checks the mode and credential combination. It never touches the
// network or the filesystem.
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return core.Errorf(core.KindConfiguration,
			"invalid database mode %q, expected one of %v", c.Mode, GetModeStrings())
	}

	if c.Mode.NeedsLocal() && c.LocalPath == "" {
		return core.Errorf(core.KindConfiguration, "local database path is required for %s mode", c.Mode)
	}

	if c.Mode.NeedsRemote() {
		if c.RemoteToken == "" {
			return core.Errorf(core.KindConfiguration, "MOTHERDUCK_TOKEN is required for %s mode", c.Mode)
		}
		if err := ValidateDatabaseName(c.RemoteDatabase); err != nil {
			return err
		}
	}

	if c.ConnectTimeout < 0 {
		return core.Errorf(core.KindConfiguration, "connect timeout must not be negative")
	}
	return nil
}

// ValidateDatabaseName enforces the remote database naming rule: a letter
// followed by letters, digits or underscores, at most 63 characters.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return core.Errorf(core.KindConfiguration, "remote database name is required")
	}
	if len(name) > maxDatabaseNameLength {
		return core.Errorf(core.KindConfiguration,
			"remote database name is too long (%d > %d characters)", len(name), maxDatabaseNameLength)
	}
	if !databaseNamePattern.MatchString(name) {
		return core.Errorf(core.KindConfiguration,
			"invalid remote database name %q: must start with a letter and contain only letters, digits and underscores", name)
	}
	return nil
}

// GetModes returns all valid modes
func GetModes() []Mode {
	return []Mode{LocalMode, RemoteMode, HybridMode}
}

// GetModeStrings returns all valid mode strings
func GetModeStrings() []string {
	modes := GetModes()
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = m.String()
	}
	return out
}

func (c Config) String() string {
	token := ""
	if c.RemoteToken != "" {
		token = "***"
	}
	return fmt.Sprintf("mode=%s local=%q remote=%q token=%s reset=%t", c.Mode, c.LocalPath, c.RemoteDatabase, token, c.Reset)
}
