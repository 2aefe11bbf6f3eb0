// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// SaveEffective writes the resolved configuration to path as YAML,
// atomically. The daemon dumps its effective config to the data dir at
// startup so operators can see what ENV plus file actually resolved to.
// The API token is masked in the snapshot.
func SaveEffective(cfg Config, path string) error {
	if cfg.API.Token != "" {
		cfg.API.Token = "***redacted***"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	t, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = t.Cleanup()
	}()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("write config snapshot: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config snapshot: %w", err)
	}
	return nil
}
