package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDir returns ~/.config/roost, creating it if missing. ROOST_DATA_DIR
// overrides the location, which the tests rely on.
func DataDir() (string, error) {
	if dir := os.Getenv("ROOST_DATA_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("creating data dir: %w", err)
		}
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home dir: %w", err)
	}

	dir := filepath.Join(home, ".config", Name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}

	return dir, nil
}

func ConfigPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

func DatabasePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, Name+".db"), nil
}

func KeyPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "secret.key"), nil
}

func CredentialsPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.enc"), nil
}
