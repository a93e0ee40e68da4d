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

// Package agentsim runs a specialist agent backend speaking the chat
// protocol the orchestrator dispatches to. One process serves one
// agent profile; answers come from an LLM when a provider is
// configured, or from the profile's canned reply otherwise, which
// keeps demos and tests free of API keys.
package agentsim

import (
	"context"
	"fmt"
	"strings"

	"deskflow/platform/llm"
)

// Profile describes one simulated agent persona.
type Profile struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Capabilities []string

	// CannedReply is used when no LLM provider is configured. The
	// user's message is appended for visibility in demos.
	CannedReply string
}

// builtinProfiles are the personas of the standard helpdesk demo.
var builtinProfiles = map[string]Profile{
	"tech-support": {
		ID:          "tech-support",
		Name:        "Tech Support",
		Description: "Handles hardware, software, network and access problems",
		SystemPrompt: "You are a corporate IT support specialist. Diagnose the user's " +
			"technical problem and give concrete, numbered steps to fix it. Be concise.",
		Capabilities: []string{"vpn", "printers", "accounts", "laptops"},
		CannedReply:  "Thanks for reaching tech support. Try restarting the affected service first.",
	},
	"hr": {
		ID:          "hr",
		Name:        "HR Assistant",
		Description: "Handles payroll, leave, benefits and policy questions",
		SystemPrompt: "You are an HR assistant. Answer questions about payroll, leave, " +
			"benefits and company policy. Be warm but brief. Never invent policy details.",
		Capabilities: []string{"payroll", "leave", "benefits"},
		CannedReply:  "Thanks for contacting HR. Your request has been noted.",
	},
	"knowledge-base": {
		ID:          "knowledge-base",
		Name:        "Knowledge Base",
		Description: "Answers questions from internal documentation and runbooks",
		SystemPrompt: "You answer questions using internal company documentation. " +
			"Cite the document name when you can. Say so plainly when you do not know.",
		Capabilities: []string{"docs", "runbooks", "faq"},
		CannedReply:  "Here is what the documentation says about your question.",
	},
	"research": {
		ID:          "research",
		Name:        "Research Assistant",
		Description: "Summarizes topics and compiles background research",
		SystemPrompt: "You are a research assistant. Summarize the requested topic with " +
			"key points and open questions. Keep it under 300 words.",
		Capabilities: []string{"summaries", "analysis"},
		CannedReply:  "Research summary: the topic has several notable aspects worth exploring.",
	},
	"coding": {
		ID:          "coding",
		Name:        "Coding Assistant",
		Description: "Writes, reviews and explains code",
		SystemPrompt: "You are a senior software engineer. Answer coding questions with " +
			"working examples. Prefer the standard library of the language in question.",
		Capabilities: []string{"code-review", "debugging", "examples"},
		CannedReply:  "Here is a code suggestion for your problem.",
	},
	"support": {
		ID:          "support",
		Name:        "General Support",
		Description: "Catch-all for requests no specialist handles",
		SystemPrompt: "You are a general support agent. Help as best you can, and say " +
			"which specialist team the user should contact for follow-up.",
		Capabilities: []string{"general"},
		CannedReply:  "Thanks for your message. A support agent will follow up shortly.",
	},
}

// ProfileByID returns a built-in profile.
func ProfileByID(id string) (Profile, error) {
	p, ok := builtinProfiles[id]
	if !ok {
		ids := make([]string, 0, len(builtinProfiles))
		for k := range builtinProfiles {
			ids = append(ids, k)
		}
		return Profile{}, fmt.Errorf("unknown agent profile %q (known: %s)", id, strings.Join(ids, ", "))
	}
	return p, nil
}

// ProfileIDs lists the built-in profile ids.
func ProfileIDs() []string {
	ids := make([]string, 0, len(builtinProfiles))
	for k := range builtinProfiles {
		ids = append(ids, k)
	}
	return ids
}

// Version reported in the agent card.
const Version = "1.2.0"

// Responder produces the agent's answer for one message.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// llmResponder answers with a model completion under the profile's
// system prompt.
type llmResponder struct {
	provider llm.Provider
	profile  Profile
}

func (r *llmResponder) Respond(ctx context.Context, message string) (string, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:       message,
		SystemPrompt: r.profile.SystemPrompt,
		Temperature:  0.7,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// cannedResponder answers with the profile's fixed reply.
type cannedResponder struct {
	profile Profile
}

func (r *cannedResponder) Respond(_ context.Context, message string) (string, error) {
	return fmt.Sprintf("[%s] %s (you asked: %q)", r.profile.Name, r.profile.CannedReply, message), nil
}
