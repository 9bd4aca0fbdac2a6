// Package config provides YAML-friendly wrappers for config values.
package config

import (
	"fmt"
	"time"
)

// Duration parses Go duration strings ("15m", "100ms") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	err := unmarshal(&s)
	if err != nil {
		return err
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("couldn't parse duration: %w", err)
	}

	*d = Duration(duration)
	return nil
}

func (d *Duration) Duration() time.Duration {
	return time.Duration(*d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
