package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TerminalFileName holds the generated terminal identity inside the store dir.
const TerminalFileName = "terminal.json"

type terminalDoc struct {
	TerminalID string `json:"terminal_id"`
}

// LoadTerminalID fills cfg.TerminalID when it is not configured. The id is
// read from StoreDir/terminal.json, or generated and written there on first
// run so the terminal keeps the same identity across restarts.
func LoadTerminalID(cfg *Config) error {
	if cfg.TerminalID != "" {
		return nil
	}
	if cfg.StoreDir == "" {
		return fmt.Errorf("terminal-id is required (or store-dir)")
	}

	path := filepath.Join(cfg.StoreDir, TerminalFileName)
	id, err := readTerminalID(path)
	switch {
	case err == nil:
		cfg.TerminalID = id
		return nil
	case !os.IsNotExist(err):
		return fmt.Errorf("read terminal id: %w", err)
	}

	id = uuid.NewString()
	if err := writeTerminalID(path, id); err != nil {
		return fmt.Errorf("write terminal id: %w", err)
	}
	cfg.TerminalID = id
	return nil
}

func readTerminalID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc terminalDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", err
	}
	if doc.TerminalID == "" {
		return "", fmt.Errorf("%s: empty terminal_id", path)
	}
	return doc.TerminalID, nil
}

func writeTerminalID(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(terminalDoc{TerminalID: id}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
