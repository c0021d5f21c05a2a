package config

import "fmt"

// CredentialStatus describes one configured secret for startup checks.
type CredentialStatus struct {
	Name   string
	Set    bool
	Masked string
}

// Credentials reports the state of the image and chat credentials.
func (c *Config) Credentials() []CredentialStatus {
	return []CredentialStatus{
		{Name: LegacyStabilityKeyEnv, Set: c.Stability.APIKey != "", Masked: MaskKey(c.Stability.APIKey)},
		{Name: LegacyChatKeyEnv, Set: c.Chat.APIKey != "", Masked: MaskKey(c.Chat.APIKey)},
	}
}

// CredentialWarnings lists missing credentials. A missing key is not fatal:
// the affected operation fails with a configuration error when invoked.
func (c *Config) CredentialWarnings() []string {
	var warnings []string
	for _, cs := range c.Credentials() {
		if !cs.Set {
			warnings = append(warnings, fmt.Sprintf("%s is not set", cs.Name))
		}
	}
	return warnings
}

// MaskKey renders a secret as its first and last five characters. Keys too
// short to mask safely are fully hidden.
func MaskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 10:
		return "***"
	default:
		return key[:5] + "..." + key[len(key)-5:]
	}
}
