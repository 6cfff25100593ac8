package lapi

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credentials identifies this instance as a registered machine against the
// upstream LAPI. The YAML layout matches the upstream's own
// local_api_credentials.yaml so an existing file can be mounted directly.
type Credentials struct {
	URL      string `yaml:"url"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// Complete reports whether the credentials are usable for a login call.
func (c Credentials) Complete() bool {
	return c.URL != "" && c.Login != "" && c.Password != ""
}

// LoadCredentialsFile reads an upstream-style credentials YAML file.
func LoadCredentialsFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file: %w", err)
	}
	creds.URL = strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	creds.Login = strings.TrimSpace(creds.Login)

	return creds, nil
}
