package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadConfDefaults(t *testing.T) {
	t.Setenv("ROOST_DATA_DIR", t.TempDir())

	conf, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf: %v", err)
	}

	if conf.Conf.DefaultNetworks != "mastodon,bluesky" {
		t.Errorf("expected default networks mastodon,bluesky, got %s", conf.Conf.DefaultNetworks)
	}
	if conf.Conf.TimelineLimit != 50 {
		t.Errorf("expected timeline limit 50, got %d", conf.Conf.TimelineLimit)
	}
	if conf.Conf.MaxChars != 300 {
		t.Errorf("expected max chars 300, got %d", conf.Conf.MaxChars)
	}
	if conf.Conf.PollIntervalSec != 30 {
		t.Errorf("expected poll interval 30, got %d", conf.Conf.PollIntervalSec)
	}
}

func TestReadConfCreatesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROOST_DATA_DIR", dir)

	_, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestReadConfEnvOverride(t *testing.T) {
	t.Setenv("ROOST_DATA_DIR", t.TempDir())
	t.Setenv("ROOST_TIMELINE_LIMIT", "25")
	t.Setenv("ROOST_DEFAULT_NETWORKS", "bluesky")

	conf, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf: %v", err)
	}

	if conf.Conf.TimelineLimit != 25 {
		t.Errorf("expected timeline limit 25, got %d", conf.Conf.TimelineLimit)
	}
	if conf.Conf.DefaultNetworks != "bluesky" {
		t.Errorf("expected networks bluesky, got %s", conf.Conf.DefaultNetworks)
	}
}

func TestReadConfClamping(t *testing.T) {
	t.Setenv("ROOST_DATA_DIR", t.TempDir())
	t.Setenv("ROOST_TIMELINE_LIMIT", "500")
	t.Setenv("ROOST_MAX_CHARS", "5000")

	conf, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf: %v", err)
	}

	if conf.Conf.TimelineLimit != 100 {
		t.Errorf("expected timeline limit capped at 100, got %d", conf.Conf.TimelineLimit)
	}
	if conf.Conf.MaxChars != 300 {
		t.Errorf("expected max chars capped at 300, got %d", conf.Conf.MaxChars)
	}
}
