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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingDecisionLatencyInMillis(t *testing.T) {
	resp := AskResponse{
		RoutedTo: "hr",
		Response: "Your leave balance is 12 days.",
		TraceID:  "t-1",
		Routing: &RoutingDecision{
			AgentID: "hr",
			Model:   "fake-model",
			Latency: 1500 * time.Millisecond,
		},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Routing struct {
			AgentID   string `json:"agent_id"`
			LatencyMS int64  `json:"latency_ms"`
		} `json:"routing"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "hr", decoded.Routing.AgentID)
	assert.Equal(t, int64(1500), decoded.Routing.LatencyMS)
}
