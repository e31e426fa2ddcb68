package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// AgentFixture is one agent directory: config.yaml plus an optional AGENT.md.
type AgentFixture struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tier         string   `yaml:"tier"`
	Category     string   `yaml:"category,omitempty"`
	Status       string   `yaml:"status,omitempty"`
	Keywords     []string `yaml:"keywords"`
	DelegatesTo  []string `yaml:"delegates_to,omitempty"`
	Instructions string   `yaml:"-"`
}

// DefaultAgents is the fixture tree every suite starts from.
func DefaultAgents() []AgentFixture {
	return []AgentFixture{
		{
			Name: "commit-writer", Description: "Writes conventional commit messages",
			Tier: "tactical", Category: "development",
			Keywords:     []string{"commit message", "git commit"},
			Instructions: "# Commit Writer\n\nWrite conventional commits.\n",
		},
		{
			Name: "secret-scanner", Description: "Finds leaked credentials",
			Tier: "tactical", Category: "security",
			Keywords: []string{"secret", "api key", "credential"},
		},
		{
			Name: "changelog-drafter", Description: "Drafts changelog entries",
			Tier: "tactical", Category: "documentation", Status: "draft",
			Keywords: []string{"changelog"},
		},
		{
			Name: "security-lead", Description: "Coordinates security reviews",
			Tier: "strategic", Category: "security",
			Keywords:     []string{"security review", "api key"},
			DelegatesTo:  []string{"secret-scanner"},
			Instructions: "# Security Lead\n\nTriage, then delegate.\n",
		},
	}
}

// WriteAgent writes fixture into root/<name>/.
func WriteAgent(root string, fixture AgentFixture) error {
	dir := filepath.Join(root, fixture.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(fixture)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", fixture.Name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return err
	}
	if fixture.Instructions != "" {
		return os.WriteFile(filepath.Join(dir, "AGENT.md"), []byte(fixture.Instructions), 0644)
	}
	return nil
}

// WriteRaw writes raw config.yaml content for name, for malformed cases.
func WriteRaw(root, name, content string) error {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644)
}

// RemoveAgent deletes root/<name>/.
func RemoveAgent(root, name string) error {
	return os.RemoveAll(filepath.Join(root, name))
}
