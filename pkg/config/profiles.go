package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

//go:embed profiles.schema.json
var profileSchemaJSON string

const profileSchemaURL = "https://coherence.schemas.local/weight-profiles.schema.json"

// SupportedProfileVersions is the document version range this build reads.
const SupportedProfileVersions = ">= 1.0.0, < 2.0.0"

// ProfileDocument is a YAML file of weight profiles.
type ProfileDocument struct {
	Version  string        `yaml:"version" json:"version"`
	Profiles []ProfileSpec `yaml:"profiles" json:"profiles"`
}

// ProfileSpec declares one weight profile.
type ProfileSpec struct {
	Name        string             `yaml:"name" json:"name"`
	ProjectType string             `yaml:"project_type,omitempty" json:"project_type,omitempty"`
	Normalize   bool               `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	Weights     map[string]float64 `yaml:"weights" json:"weights"`
}

var profileSchema = mustCompileProfileSchema()

func mustCompileProfileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(profileSchemaURL, strings.NewReader(profileSchemaJSON)); err != nil {
		panic(fmt.Sprintf("profile schema load failed: %v", err))
	}
	return c.MustCompile(profileSchemaURL)
}

// LoadProfileDocument reads and validates a profile document from path.
func LoadProfileDocument(path string) (*ProfileDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %q: %w", path, err)
	}
	doc, err := ParseProfileDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ParseProfileDocument decodes YAML, validates it against the document
// schema and checks the version range.
func ParseProfileDocument(data []byte) (*ProfileDocument, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	// The validator expects encoding/json shaped values.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	var instance any
	if err := json.Unmarshal(asJSON, &instance); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := profileSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("profile schema validation failed: %w", err)
	}

	var doc ProfileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := checkVersion(doc.Version); err != nil {
		return nil, err
	}
	return &doc, nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid profile document version %q: %w", v, err)
	}
	constraint, err := semver.NewConstraint(SupportedProfileVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("unsupported profile document version %s (want %s)", version, SupportedProfileVersions)
	}
	return nil
}

// CategoryWeights converts the profile weights to typed categories.
func (s ProfileSpec) CategoryWeights() (map[contracts.Category]float64, error) {
	out := make(map[contracts.Category]float64, len(s.Weights))
	for k, w := range s.Weights {
		c, err := contracts.ParseCategory(k)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", s.Name, err)
		}
		out[c] = w
	}
	return out, nil
}

// ApplyProfiles creates each profile in the document, or appends a revision
// when a profile of that name already exists.
func ApplyProfiles(reg *weights.Registry, doc *ProfileDocument) ([]weights.Profile, error) {
	out := make([]weights.Profile, 0, len(doc.Profiles))
	for _, entry := range doc.Profiles {
		w, err := entry.CategoryWeights()
		if err != nil {
			return nil, err
		}

		var p weights.Profile
		if _, err := reg.Get(entry.Name); err == nil {
			p, err = reg.Update(entry.Name, w, entry.Normalize)
			if err != nil {
				return nil, fmt.Errorf("update profile %s: %w", entry.Name, err)
			}
		} else {
			p, err = reg.Create(weights.Profile{Name: entry.Name, ProjectType: entry.ProjectType, Weights: w}, entry.Normalize)
			if err != nil {
				return nil, fmt.Errorf("create profile %s: %w", entry.Name, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}
