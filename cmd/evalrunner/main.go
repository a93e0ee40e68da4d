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

// The evalrunner binary replays an evaluation dataset through a running
// orchestrator, grades answers with an LLM judge, and writes a JSON
// report with routing accuracy and answer scores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"deskflow/platform/evaluation"
	"deskflow/platform/llm"
	"deskflow/platform/shared/logger"
)

func main() {
	var (
		routerURL = flag.String("router", "http://localhost:8080", "orchestrator base URL")
		dataset   = flag.String("dataset", "", "path to the dataset JSON file (required)")
		output    = flag.String("out", "eval-report.json", "path for the JSON report")
		noJudge   = flag.Bool("no-judge", false, "skip the LLM judge and score routing only")
	)
	flag.Parse()

	if *dataset == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*routerURL, *dataset, *output, *noJudge); err != nil {
		fmt.Fprintf(os.Stderr, "evalrunner: %v\n", err)
		os.Exit(1)
	}
}

func run(routerURL, datasetPath, output string, noJudge bool) error {
	log := logger.New("evalrunner")
	ctx := context.Background()

	ds, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		return err
	}

	var judge *evaluation.Judge
	if !noJudge {
		provider, err := llm.New(ctx, llm.LoadConfigFromEnv())
		if err != nil {
			return fmt.Errorf("judge needs an LLM provider (or pass -no-judge): %w", err)
		}
		judge = evaluation.NewJudge(provider)
	}

	runner := evaluation.NewRunner(evaluation.NewHTTPRouterClient(routerURL), judge, log)
	report := runner.Run(ctx, ds)

	if err := evaluation.WriteReport(report, output); err != nil {
		return err
	}

	fmt.Printf("dataset:          %s (%d items, %d errors)\n", report.Dataset, report.Total, report.Errors)
	fmt.Printf("routing accuracy: %.1f%%\n", report.RoutingAccuracy*100)
	fmt.Printf("mean score:       %.2f\n", report.MeanScore)
	fmt.Printf("report:           %s\n", output)
	return nil
}
