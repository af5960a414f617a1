// Package mcpserver exposes the answering workflow as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/hybrid-analyst/batch"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
)

// Tool names.
const (
	ToolAnswer   = "answer_question"
	ToolWorkflow = "describe_workflow"
)

// Resolver answers one record. *batch.Runner implements it.
type Resolver interface {
	Resolve(ctx context.Context, in batch.Input) batch.Output
}

// Workflow describes the step graph. *analyst.Analyst implements it.
type Workflow interface {
	Steps() []string
	Successors(step string) ([]string, error)
}

// AnswerArgs are the answer_question arguments.
type AnswerArgs struct {
	ID         string `json:"id,omitempty" jsonschema:"Optional caller id echoed in the result"`
	Question   string `json:"question" jsonschema:"Natural-language question about the documents or the database"`
	FormatHint string `json:"format_hint,omitempty" jsonschema:"Expected answer type such as int, float, str or list[...]"`
}

// WorkflowDescription is the describe_workflow result.
type WorkflowDescription struct {
	Steps       []string            `json:"steps"`
	Transitions map[string][]string `json:"transitions"`
}

// NewServer builds the MCP server. workflow may be nil, in which case only the
// answer tool is registered.
func NewServer(name, version string, resolver Resolver, workflow Workflow) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
		Title:   "Hybrid document and SQL analyst",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAnswer,
		Description: "Answer a question using the document corpus and the relational database",
	}, AnswerHandler(resolver))

	if workflow != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolWorkflow,
			Description: "List the workflow steps and their possible successors",
		}, WorkflowHandler(workflow))
	}
	return server
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	logging.WithComponent("mcpserver").Info("serving MCP over stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

// AnswerHandler returns the answer_question handler.
func AnswerHandler(resolver Resolver) func(context.Context, *mcp.CallToolRequest, AnswerArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args AnswerArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Question) == "" {
			return nil, nil, fmt.Errorf("question is required")
		}
		id := args.ID
		if id == "" {
			id = "mcp"
		}
		out := resolver.Resolve(ctx, batch.Input{ID: id, Question: args.Question, FormatHint: args.FormatHint})
		return jsonResult(out)
	}
}

// WorkflowHandler returns the describe_workflow handler.
func WorkflowHandler(workflow Workflow) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
		desc := WorkflowDescription{
			Steps:       workflow.Steps(),
			Transitions: make(map[string][]string),
		}
		for _, step := range desc.Steps {
			next, err := workflow.Successors(step)
			if err != nil {
				return nil, nil, fmt.Errorf("describe %s: %w", step, err)
			}
			desc.Transitions[step] = next
		}
		return jsonResult(desc)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}
