package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDAutomation is the identifier for the automation settings section
	SectionIDAutomation = "automation"

	defaultPollIntervalSeconds     = 1
	defaultWarningThresholdPercent = 10
)

// AutomationSection manages the automation loop settings: how often the
// decision routine runs, the quota warning threshold, and the user blocklist.
// An empty blocklist means the built-in defaults apply (see pkg/safety).
type AutomationSection struct {
	pollIntervalSeconds     int
	warningThresholdPercent int
	blocklist               []string
	mu                      sync.RWMutex
}

// NewAutomationSection creates an automation section with default settings.
func NewAutomationSection() *AutomationSection {
	return &AutomationSection{
		pollIntervalSeconds:     defaultPollIntervalSeconds,
		warningThresholdPercent: defaultWarningThresholdPercent,
	}
}

// ID returns the section identifier.
func (s *AutomationSection) ID() string {
	return SectionIDAutomation
}

// Data returns the current configuration data.
func (s *AutomationSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocklist := make([]interface{}, len(s.blocklist))
	for i, p := range s.blocklist {
		blocklist[i] = p
	}
	return map[string]interface{}{
		"poll_interval_seconds":     s.pollIntervalSeconds,
		"warning_threshold_percent": s.warningThresholdPercent,
		"blocklist":                 blocklist,
	}
}

// SetData updates the configuration from the provided data.
// Unknown keys are ignored for forward compatibility.
func (s *AutomationSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "poll_interval_seconds":
			n, err := toInt(value)
			if err != nil {
				return fmt.Errorf("invalid poll_interval_seconds: %w", err)
			}
			s.pollIntervalSeconds = n

		case "warning_threshold_percent":
			n, err := toInt(value)
			if err != nil {
				return fmt.Errorf("invalid warning_threshold_percent: %w", err)
			}
			s.warningThresholdPercent = n

		case "blocklist":
			items, ok := value.([]interface{})
			if !ok {
				// Already-typed slices show up when data round-trips in memory.
				if typed, ok := value.([]string); ok {
					s.blocklist = append([]string(nil), typed...)
					continue
				}
				return fmt.Errorf("invalid blocklist type: expected list, got %T", value)
			}
			blocklist := make([]string, 0, len(items))
			for i, item := range items {
				pattern, ok := item.(string)
				if !ok {
					return fmt.Errorf("invalid blocklist entry at index %d: expected string, got %T", i, item)
				}
				blocklist = append(blocklist, pattern)
			}
			s.blocklist = blocklist
		}
	}
	return nil
}

// toInt normalizes JSON numbers (float64) and in-memory ints.
func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

// Validate validates the current configuration.
func (s *AutomationSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1, got %d", s.pollIntervalSeconds)
	}
	if s.warningThresholdPercent < 0 || s.warningThresholdPercent > 100 {
		return fmt.Errorf("warning_threshold_percent must be within [0,100], got %d", s.warningThresholdPercent)
	}
	return nil
}

// Reset restores the section to default configuration.
func (s *AutomationSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pollIntervalSeconds = defaultPollIntervalSeconds
	s.warningThresholdPercent = defaultWarningThresholdPercent
	s.blocklist = nil
}

// PollInterval returns the automation loop tick interval.
func (s *AutomationSection) PollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.pollIntervalSeconds) * time.Second
}

// WarningThresholdPercent returns the quota warning threshold.
func (s *AutomationSection) WarningThresholdPercent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warningThresholdPercent
}

// Blocklist returns a copy of the configured blocklist patterns.
// Empty means the caller should fall back to the built-in defaults.
func (s *AutomationSection) Blocklist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.blocklist...)
}

// SetBlocklist replaces the configured blocklist patterns.
func (s *AutomationSection) SetBlocklist(patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocklist = append([]string(nil), patterns...)
}
