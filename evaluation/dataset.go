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

// Package evaluation scores the router end to end: each dataset item
// is sent through the orchestrator, the routing decision is checked
// against the expected agent, and an LLM judge grades the answer.
package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
)

// Item is one evaluation case.
type Item struct {
	// ID identifies the case in reports. Optional; the index is used
	// when empty.
	ID string `json:"id,omitempty"`

	// Question is sent to the router verbatim.
	Question string `json:"question"`

	// ExpectedAgent is the agent the router should select.
	ExpectedAgent string `json:"expected_agent"`

	// Category groups items in the summary, e.g. "it", "hr",
	// "ambiguous".
	Category string `json:"category,omitempty"`

	// ExpectedAnswerContains lists substrings a good answer mentions.
	// Informational for the judge, not a hard string match.
	ExpectedAnswerContains StringList `json:"expected_answer_contains,omitempty"`
}

// StringList unmarshals from either a single JSON string or an array
// of strings. Hand-written datasets use both shapes.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = StringList(list)
	return nil
}

// Dataset is a named collection of evaluation items.
type Dataset struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// LoadDataset reads a dataset JSON file and validates it.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	if len(ds.Items) == 0 {
		return nil, fmt.Errorf("dataset %s has no items", path)
	}
	for i, item := range ds.Items {
		if item.Question == "" {
			return nil, fmt.Errorf("dataset %s: items[%d] has no question", path, i)
		}
		if item.ExpectedAgent == "" {
			return nil, fmt.Errorf("dataset %s: items[%d] has no expected_agent", path, i)
		}
		if ds.Items[i].ID == "" {
			ds.Items[i].ID = fmt.Sprintf("item-%03d", i+1)
		}
	}
	return &ds, nil
}
