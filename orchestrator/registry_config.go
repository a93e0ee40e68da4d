// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Expected manifest identity.
const (
	RegistryAPIVersion = "deskflow.io/v1"
	RegistryKind       = "AgentRegistry"
)

// RegistryManifest is the on-disk registry format. It follows the
// Kubernetes resource convention so operators can keep it next to
// their other manifests.
type RegistryManifest struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name   string            `yaml:"name"`
		Labels map[string]string `yaml:"labels,omitempty"`
	} `yaml:"metadata"`
	Spec struct {
		Agents []AgentDescriptor `yaml:"agents"`
	} `yaml:"spec"`
}

// LoadError reports why a registry manifest was rejected. Path is the
// file it came from and Problems lists every validation failure found,
// so operators fix a bad manifest in one pass.
type LoadError struct {
	Path     string
	Problems []string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("invalid agent registry %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// LoadManifest reads and validates an AgentRegistry manifest from disk.
// A manifest that parses but fails validation returns a *LoadError; the
// caller keeps serving its previous snapshot.
func LoadManifest(path string) (*RegistryManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent registry %s: %w", path, err)
	}

	var manifest RegistryManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse agent registry %s: %w", path, err)
	}

	if problems := validateManifest(&manifest); len(problems) > 0 {
		return nil, &LoadError{Path: path, Problems: problems}
	}

	return &manifest, nil
}

func validateManifest(m *RegistryManifest) []string {
	var problems []string

	if m.APIVersion != RegistryAPIVersion {
		problems = append(problems, fmt.Sprintf("apiVersion must be %s, got %q", RegistryAPIVersion, m.APIVersion))
	}
	if m.Kind != RegistryKind {
		problems = append(problems, fmt.Sprintf("kind must be %s, got %q", RegistryKind, m.Kind))
	}
	if len(m.Spec.Agents) == 0 {
		problems = append(problems, "spec.agents must list at least one agent")
	}

	seen := make(map[string]bool, len(m.Spec.Agents))
	for i, agent := range m.Spec.Agents {
		where := fmt.Sprintf("spec.agents[%d]", i)
		if agent.ID == "" {
			problems = append(problems, where+": id is required")
		} else if agent.ID != strings.ToLower(agent.ID) {
			// The classifier normalizes model output to lowercase, so an
			// uppercase id could never be selected.
			problems = append(problems, fmt.Sprintf("%s: id %q must be lowercase", where, agent.ID))
		} else if seen[agent.ID] {
			problems = append(problems, fmt.Sprintf("%s: duplicate agent id %q", where, agent.ID))
		} else {
			seen[agent.ID] = true
		}
		if agent.Name == "" {
			problems = append(problems, where+": name is required")
		}
		if agent.Description == "" {
			problems = append(problems, where+": description is required")
		}
		if agent.Endpoint == "" {
			problems = append(problems, where+": endpoint is required")
		} else if u, err := url.Parse(agent.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: endpoint %q is not an absolute URL", where, agent.Endpoint))
		}
	}

	return problems
}
