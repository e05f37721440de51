package seed

import (
	"bytes"
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yml
var fixtureFS embed.FS

// Fixtures are hand-written values used instead of generated ones. Empty lists
// fall back to generated data.
type Fixtures struct {
	Usernames     []string `yaml:"usernames"`
	EmailDomains  []string `yaml:"email_domains"`
	Bios          []string `yaml:"bios"`
	Messages      []string `yaml:"messages"`
	ReportReasons []string `yaml:"report_reasons"`
}

// NotEnoughTestDataError is returned when a fixture list of unique values runs out.
type NotEnoughTestDataError struct {
	Field string
}

func (e *NotEnoughTestDataError) Error() string {
	return fmt.Sprintf("not enough test data for field %q", e.Field)
}

// LoadFixtures reads a fixture file. The name "demo" selects the built-in demo set.
func LoadFixtures(path string) (*Fixtures, error) {
	var (
		raw []byte
		err error
	)
	if path == "demo" {
		raw, err = fixtureFS.ReadFile("fixtures/demo.yml")
	} else {
		raw, err = os.ReadFile(path) // #nosec G304: operator supplied path
	}
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(raw)
}

// ParseFixtures decodes YAML fixtures. Unknown keys are rejected.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}
