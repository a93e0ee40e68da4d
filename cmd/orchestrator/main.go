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

// The orchestrator binary serves the request router: it classifies
// incoming messages against the agent registry and dispatches them to
// the selected agent backend.
package main

import (
	"fmt"
	"os"

	"deskflow/platform/orchestrator"
)

func main() {
	if err := orchestrator.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}
