package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "roost"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		DefaultNetworks string `yaml:"defaultNetworks"`
		TimelineLimit   int    `yaml:"timelineLimit"`
		CacheMaxAgeH    int    `yaml:"cacheMaxAgeHours"`
		MaxChars        int    `yaml:"maxChars"`
		Workers         int    `yaml:"workers"`
		PollIntervalSec int    `yaml:"pollIntervalSec"`
		RefreshSec      int    `yaml:"refreshSec"`
		LogFile         string `yaml:"logFile"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		buf = embeddedConfig

		if writeErr := os.WriteFile(configPath, embeddedConfig, 0644); writeErr != nil {
			log.Warn("Could not write default config", "path", configPath, "err", writeErr)
		} else {
			log.Info("Created default config file", "path", configPath)
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envDefaultNetworks := os.Getenv("ROOST_DEFAULT_NETWORKS")
	envTimelineLimit := os.Getenv("ROOST_TIMELINE_LIMIT")
	envCacheMaxAge := os.Getenv("ROOST_CACHE_MAX_AGE_HOURS")
	envMaxChars := os.Getenv("ROOST_MAX_CHARS")
	envWorkers := os.Getenv("ROOST_WORKERS")
	envPollInterval := os.Getenv("ROOST_POLL_INTERVAL_SEC")
	envRefresh := os.Getenv("ROOST_REFRESH_SEC")
	envLogFile := os.Getenv("ROOST_LOG_FILE")

	if envDefaultNetworks != "" {
		c.Conf.DefaultNetworks = envDefaultNetworks
	}

	if envTimelineLimit != "" {
		v, err := strconv.Atoi(envTimelineLimit)
		if err != nil {
			log.Warn("Error parsing ROOST_TIMELINE_LIMIT", "err", err)
		} else {
			c.Conf.TimelineLimit = v
		}
	}

	if envCacheMaxAge != "" {
		v, err := strconv.Atoi(envCacheMaxAge)
		if err != nil {
			log.Warn("Error parsing ROOST_CACHE_MAX_AGE_HOURS", "err", err)
		} else {
			c.Conf.CacheMaxAgeH = v
		}
	}

	if envMaxChars != "" {
		v, err := strconv.Atoi(envMaxChars)
		if err != nil {
			log.Warn("Error parsing ROOST_MAX_CHARS", "err", err)
		} else {
			c.Conf.MaxChars = v
		}
	}

	if envWorkers != "" {
		v, err := strconv.Atoi(envWorkers)
		if err != nil {
			log.Warn("Error parsing ROOST_WORKERS", "err", err)
		} else {
			c.Conf.Workers = v
		}
	}

	if envPollInterval != "" {
		v, err := strconv.Atoi(envPollInterval)
		if err != nil {
			log.Warn("Error parsing ROOST_POLL_INTERVAL_SEC", "err", err)
		} else {
			c.Conf.PollIntervalSec = v
		}
	}

	if envRefresh != "" {
		v, err := strconv.Atoi(envRefresh)
		if err != nil {
			log.Warn("Error parsing ROOST_REFRESH_SEC", "err", err)
		} else {
			c.Conf.RefreshSec = v
		}
	}

	if envLogFile != "" {
		c.Conf.LogFile = envLogFile
	}

	applyDefaults(c)

	return c, nil
}

// applyDefaults fills unset values and clamps the ones with hard limits.
func applyDefaults(c *AppConfig) {
	if c.Conf.DefaultNetworks == "" {
		c.Conf.DefaultNetworks = "mastodon,bluesky"
	}

	if c.Conf.TimelineLimit < 1 {
		c.Conf.TimelineLimit = 50
	} else if c.Conf.TimelineLimit > 100 {
		log.Warn("timelineLimit exceeds maximum of 100, capping", "value", c.Conf.TimelineLimit)
		c.Conf.TimelineLimit = 100
	}

	if c.Conf.CacheMaxAgeH < 1 {
		c.Conf.CacheMaxAgeH = 72
	}

	// Bluesky caps posts at 300 graphemes; use that as the cross-post limit.
	if c.Conf.MaxChars < 1 {
		c.Conf.MaxChars = 300
	} else if c.Conf.MaxChars > 300 {
		log.Warn("maxChars exceeds maximum of 300, capping", "value", c.Conf.MaxChars)
		c.Conf.MaxChars = 300
	}

	if c.Conf.Workers < 1 {
		c.Conf.Workers = 4
	} else if c.Conf.Workers > 32 {
		c.Conf.Workers = 32
	}

	if c.Conf.PollIntervalSec < 1 {
		c.Conf.PollIntervalSec = 30
	}

	if c.Conf.RefreshSec < 0 {
		c.Conf.RefreshSec = 0
	}
}
