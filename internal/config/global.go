// SPDX-License-Identifier: MPL-2.0

package config

// Test and flag overrides. os.UserHomeDir does not reliably respect
// the HOME environment variable on every platform, so tests set these
// instead of mutating the process environment.
var (
	configDirOverride  string
	configFileOverride string
	userDirOverride    string
)

// Reset clears every override. Call from test cleanup.
func Reset() {
	configDirOverride = ""
	configFileOverride = ""
	userDirOverride = ""
}

// SetConfigDirOverride points ConfigDir at a custom directory.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// SetConfigFileOverride selects an explicit config file (the --config
// flag).
func SetConfigFileOverride(path string) {
	configFileOverride = path
}

// SetUserDirOverride points UserDir at a custom directory.
func SetUserDirOverride(dir string) {
	userDirOverride = dir
}
