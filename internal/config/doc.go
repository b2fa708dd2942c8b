// Package config loads, validates, and hot-reloads the newsreaper YAML
// configuration. Load applies defaults for absent fields and rejects any
// threshold or weight outside [0,1] with a *ConfigurationError — invalid
// values abort startup rather than being clamped. Watch reloads the file on
// change via fsnotify, keeping the previous config when a reload fails.
package config
