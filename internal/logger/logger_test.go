package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_FallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "verbose", Format: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}

func TestNew_JSONFormatter(t *testing.T) {
	log, err := New(Config{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected JSON formatter, got %T", log.Formatter)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}
}
