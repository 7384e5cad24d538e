// Package mcp exposes the correction engine over the Model Context
// Protocol so AI tools can invoke corrections via JSON-RPC 2.0 on
// stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/diff"
	"github.com/quillhq/quill/internal/engine"
	"github.com/quillhq/quill/internal/guard"
	"github.com/quillhq/quill/internal/provider"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server name advertised during the MCP handshake.
	Name string

	// Version is the server version advertised during the MCP handshake.
	Version string

	// ConfigPath points at the user config file; empty means the default
	// location.
	ConfigPath string

	// Logger defaults to a text handler on stderr, keeping stdout clean
	// for the protocol.
	Logger *slog.Logger
}

// Server wraps the correction engine in an MCP tool surface.
type Server struct {
	server *mcpsdk.Server
	engine *engine.Engine
	cfg    config.Config
	logger *slog.Logger
}

// NewServer creates an MCP server exposing the correction tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	userCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	engineCfg := userCfg.EngineConfig()
	engineCfg.Logger = logger
	eng := engine.New(engineCfg)

	s := &Server{
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		engine: eng,
		cfg:    userCfg,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// correctInput are the arguments of the quill_correct tool.
type correctInput struct {
	Text     string `json:"text" jsonschema:"the text to correct"`
	Provider string `json:"provider,omitempty" jsonschema:"CLI tool to use: claude, codex, or gemini (default from config)"`
	Model    string `json:"model,omitempty" jsonschema:"provider-specific model alias (default from config)"`
}

// correctOutput is the result of the quill_correct tool.
type correctOutput struct {
	Text             string `json:"text"`
	Summary          string `json:"summary"`
	UsedFallback     bool   `json:"used_fallback"`
	RetriesPerformed int    `json:"retries_performed"`
	UnverifiedTokens int    `json:"unverified_tokens"`
}

// diffInput are the arguments of the quill_diff tool.
type diffInput struct {
	Old string `json:"old" jsonschema:"the original text"`
	New string `json:"new" jsonschema:"the revised text"`
}

// diffOutput is the result of the quill_diff tool.
type diffOutput struct {
	Segments []diff.Segment `json:"segments"`
	Summary  string         `json:"summary"`
}

// protectInput are the arguments of the quill_protect tool.
type protectInput struct {
	Text string `json:"text" jsonschema:"the text whose sensitive tokens should be replaced with placeholders"`
}

// protectOutput is the result of the quill_protect tool.
type protectOutput struct {
	ProtectedText string        `json:"protected_text"`
	Tokens        []guard.Token `json:"tokens"`
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "quill_correct",
		Description: "Correct grammar, spelling, and punctuation in text using a local AI CLI tool. Mentions, emoji shortcodes, URLs, emails, file paths, and code spans are preserved verbatim.",
	}, s.handleCorrect)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "quill_diff",
		Description: "Compute a word-level diff between two texts.",
	}, s.handleDiff)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "quill_protect",
		Description: "Replace mentions, emoji shortcodes, URLs, emails, file paths, and code spans in text with opaque placeholders, returning the mapping needed to restore them.",
	}, s.handleProtect)
}

func (s *Server) handleCorrect(ctx context.Context, req *mcpsdk.CallToolRequest, in correctInput) (*mcpsdk.CallToolResult, correctOutput, error) {
	creq := s.cfg.NewRequest(in.Text)
	// MCP callers get the complete result in one response; streaming
	// buys nothing over JSON-RPC.
	creq.Streaming = false
	if in.Provider != "" {
		name, err := provider.ParseName(in.Provider)
		if err != nil {
			return nil, correctOutput{}, err
		}
		creq.Provider = name
	}
	if in.Model != "" {
		creq.Model = in.Model
	}

	res, err := s.engine.CorrectText(ctx, creq)
	if err != nil {
		return nil, correctOutput{}, err
	}
	return nil, correctOutput{
		Text:             res.Text,
		Summary:          res.Summary(),
		UsedFallback:     res.UsedFallback,
		RetriesPerformed: res.RetriesPerformed,
		UnverifiedTokens: len(res.UnverifiedTokens),
	}, nil
}

func (s *Server) handleDiff(ctx context.Context, req *mcpsdk.CallToolRequest, in diffInput) (*mcpsdk.CallToolResult, diffOutput, error) {
	segments := diff.WordDiff(in.Old, in.New)
	return nil, diffOutput{
		Segments: segments,
		Summary:  diff.ChangeSummary(segments),
	}, nil
}

func (s *Server) handleProtect(ctx context.Context, req *mcpsdk.CallToolRequest, in protectInput) (*mcpsdk.CallToolResult, protectOutput, error) {
	res := guard.Protect(in.Text)
	return nil, protectOutput{
		ProtectedText: res.ProtectedText,
		Tokens:        res.Tokens,
	}, nil
}

// Run serves MCP over stdio until the client disconnects or ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "provider", s.cfg.Provider)
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the engine's persistent sessions. Safe to call
// multiple times.
func (s *Server) Close() error {
	return s.engine.Close()
}
