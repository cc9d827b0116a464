// Package mcpserver exposes the mailbox as MCP tools so protocol-speaking
// agents can send, check, and complete messages without learning the HTTP
// surface.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// Server wraps the mailbox store behind MCP tool handlers.
type Server struct {
	store *mailbox.Store
	mcp   *mcp.Server
}

// New builds the MCP server and registers the tool set.
func New(store *mailbox.Store, version string) *Server {
	s := &Server{
		store: store,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "quack",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quack_send",
		Description: "Send a message to another agent's inbox",
	}, s.send)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quack_check",
		Description: "List messages waiting in an inbox",
	}, s.check)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quack_receive",
		Description: "Fetch the next actionable message from an inbox and mark it read",
	}, s.receive)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quack_complete",
		Description: "Mark a message as completed",
	}, s.complete)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quack_reply",
		Description: "Reply to a message; the recipient is resolved from the original sender",
	}, s.reply)

	return s
}

// Handler returns the HTTP handler carrying the MCP transport. Each
// connection gets its own session id and a POST endpoint to push frames to.
func (s *Server) Handler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

type sendInput struct {
	To      string `json:"to" jsonschema:"destination inbox path, e.g. replit/main"`
	From    string `json:"from" jsonschema:"sender agent id"`
	Task    string `json:"task" jsonschema:"what the recipient should do"`
	Context string `json:"context,omitempty" jsonschema:"optional supporting context"`
	Project string `json:"project,omitempty" jsonschema:"optional project name"`
}

type sendOutput struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	ThreadID  string `json:"threadId"`
}

func (s *Server) send(ctx context.Context, _ *mcp.CallToolRequest, in sendInput) (*mcp.CallToolResult, sendOutput, error) {
	msg, err := s.store.Send(ctx, mailbox.SendInput{
		To: in.To, From: in.From, Task: in.Task,
		Context: in.Context, Project: in.Project,
		Actor: in.From, SourceAddr: "quack-mcp",
	})
	if err != nil {
		return nil, sendOutput{}, err
	}
	out := sendOutput{MessageID: msg.ID, Status: string(msg.Status), ThreadID: msg.ThreadID}
	return textResult("Message %s to %s is %s", msg.ID, msg.To, msg.Status), out, nil
}

type checkInput struct {
	Inbox           string `json:"inbox" jsonschema:"inbox path to check"`
	IncludeTerminal bool   `json:"includeTerminal,omitempty" jsonschema:"include completed and failed messages"`
}

type checkOutput struct {
	Messages []*models.Message `json:"messages"`
	Count    int               `json:"count"`
}

func (s *Server) check(ctx context.Context, _ *mcp.CallToolRequest, in checkInput) (*mcp.CallToolResult, checkOutput, error) {
	msgs, err := s.store.CheckInbox(ctx, in.Inbox, in.IncludeTerminal, true)
	if err != nil {
		return nil, checkOutput{}, err
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return textResult("%d message(s) in %s", len(msgs), in.Inbox),
		checkOutput{Messages: msgs, Count: len(msgs)}, nil
}

type receiveInput struct {
	Inbox string `json:"inbox" jsonschema:"inbox path to receive from"`
}

type receiveOutput struct {
	Message *models.Message `json:"message,omitempty"`
	Empty   bool            `json:"empty"`
}

func (s *Server) receive(ctx context.Context, _ *mcp.CallToolRequest, in receiveInput) (*mcp.CallToolResult, receiveOutput, error) {
	msgs, err := s.store.CheckInbox(ctx, in.Inbox, false, true)
	if err != nil {
		return nil, receiveOutput{}, err
	}
	for _, m := range msgs {
		if !m.Actionable() {
			continue
		}
		read, err := s.store.MarkRead(ctx, m.ID)
		if err != nil {
			return nil, receiveOutput{}, err
		}
		return textResult("Received %s from %s: %s", read.ID, read.From, read.Task),
			receiveOutput{Message: read}, nil
	}
	return textResult("Inbox %s has no actionable messages", in.Inbox),
		receiveOutput{Empty: true}, nil
}

type completeInput struct {
	MessageID string `json:"messageId" jsonschema:"id of the message to complete"`
	Actor     string `json:"actor,omitempty" jsonschema:"agent id completing the task"`
}

type completeOutput struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func (s *Server) complete(ctx context.Context, _ *mcp.CallToolRequest, in completeInput) (*mcp.CallToolResult, completeOutput, error) {
	actor := in.Actor
	if actor == "" {
		actor = "quack-mcp"
	}
	msg, err := s.store.Complete(ctx, in.MessageID, actor)
	if err != nil {
		return nil, completeOutput{}, err
	}
	return textResult("Message %s completed", msg.ID),
		completeOutput{MessageID: msg.ID, Status: string(msg.Status)}, nil
}

type replyInput struct {
	MessageID string `json:"messageId" jsonschema:"id of the message being replied to"`
	From      string `json:"from" jsonschema:"replying agent id"`
	Task      string `json:"task" jsonschema:"the reply text"`
	Context   string `json:"context,omitempty" jsonschema:"optional supporting context"`
}

func (s *Server) reply(ctx context.Context, _ *mcp.CallToolRequest, in replyInput) (*mcp.CallToolResult, sendOutput, error) {
	original, err := s.store.Get(ctx, in.MessageID)
	if err != nil {
		return nil, sendOutput{}, err
	}
	msg, err := s.store.Send(ctx, mailbox.SendInput{
		To: original.From, From: in.From, Task: in.Task, Context: in.Context,
		ReplyTo:        in.MessageID,
		ImpliedProject: true,
		Actor:          in.From,
		SourceAddr:     "quack-mcp",
	})
	if err != nil {
		return nil, sendOutput{}, err
	}
	out := sendOutput{MessageID: msg.ID, Status: string(msg.Status), ThreadID: msg.ThreadID}
	return textResult("Reply %s sent to %s", msg.ID, msg.To), out, nil
}
