package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/pty-shell-mcp/internal/fscache"
	"github.com/acolita/pty-shell-mcp/internal/glob"
	"github.com/acolita/pty-shell-mcp/internal/pty"
	"github.com/acolita/pty-shell-mcp/internal/task"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(ptyRunTool(), s.handlePtyRun)
	s.mcpServer.AddTool(ptyWriteTool(), s.handlePtyWrite)
	s.mcpServer.AddTool(ptyResizeTool(), s.handlePtyResize)
	s.mcpServer.AddTool(ptyKillTool(), s.handlePtyKill)
	s.mcpServer.AddTool(ptySessionCreateTool(), s.handlePtySessionCreate)
	s.mcpServer.AddTool(ptySessionCloseTool(), s.handlePtySessionClose)
	s.mcpServer.AddTool(ptySessionListTool(), s.handlePtySessionList)
	s.mcpServer.AddTool(globTool(), s.handleGlob)
	s.mcpServer.AddTool(fsCacheInvalidateTool(), s.handleFsCacheInvalidate)
}

// --- Tool definitions ---

func ptyRunTool() mcp.Tool {
	return mcp.NewTool("pty_run",
		mcp.WithDescription("Run a shell command in a pseudo-terminal and return its aggregated output. Without a session_id the command runs in a one-off session."),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Shell command line, executed via sh -lc"),
		),
		mcp.WithString("session_id",
			mcp.Description("Existing session to run in (from pty_session_create)"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the command"),
		),
		mcp.WithObject("env",
			mcp.Description("Extra environment variables merged over the inherited environment"),
		),
		mcp.WithNumber("cols",
			mcp.Description("Terminal width in columns (default 120, clamped to 20-400)"),
		),
		mcp.WithNumber("rows",
			mcp.Description("Terminal height in rows (default 40, clamped to 5-200)"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Timeout in milliseconds; 0 disables the deadline (default 30000)"),
		),
	)
}

func ptyWriteTool() mcp.Tool {
	return mcp.NewTool("pty_write",
		mcp.WithDescription("Write input to the command running in a session's terminal"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session with an active run"),
		),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("Bytes to write; include \\n to submit a line"),
		),
	)
}

func ptyResizeTool() mcp.Tool {
	return mcp.NewTool("pty_resize",
		mcp.WithDescription("Resize the terminal of a session's active run"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session with an active run"),
		),
		mcp.WithNumber("cols",
			mcp.Required(),
			mcp.Description("New width in columns (clamped to 20-400)"),
		),
		mcp.WithNumber("rows",
			mcp.Required(),
			mcp.Description("New height in rows (clamped to 5-200)"),
		),
	)
}

func ptyKillTool() mcp.Tool {
	return mcp.NewTool("pty_kill",
		mcp.WithDescription("Terminate a session's active run"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session with an active run"),
		),
	)
}

func ptySessionCreateTool() mcp.Tool {
	return mcp.NewTool("pty_session_create",
		mcp.WithDescription("Create a persistent PTY session for running commands"),
	)
}

func ptySessionCloseTool() mcp.Tool {
	return mcp.NewTool("pty_session_close",
		mcp.WithDescription("Close a session, killing any in-flight run"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to close"),
		),
	)
}

func ptySessionListTool() mcp.Tool {
	return mcp.NewTool("pty_session_list",
		mcp.WithDescription("List open PTY sessions"),
	)
}

func globTool() mcp.Tool {
	return mcp.NewTool("glob",
		mcp.WithDescription("Find files matching a glob pattern. Bare patterns like *.go match at any depth; patterns with / are taken literally."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory to search"),
		),
		mcp.WithString("pattern",
			mcp.Description("Glob pattern; empty matches everything"),
		),
		mcp.WithString("file_type",
			mcp.Description("Filter matches by type: file, dir, or symlink"),
		),
		mcp.WithBoolean("hidden",
			mcp.Description("Include hidden files (default false)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Cap on returned matches; 0 means unlimited"),
		),
		mcp.WithBoolean("no_gitignore",
			mcp.Description("Disable .gitignore handling"),
		),
		mcp.WithBoolean("cache",
			mcp.Description("Serve from the shared scan cache when fresh"),
		),
		mcp.WithBoolean("sort_by_mtime",
			mcp.Description("Rank matches newest-first before truncation"),
		),
		mcp.WithBoolean("include_node_modules",
			mcp.Description("Include node_modules entries; defaults to whether the pattern mentions them"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Timeout in milliseconds; 0 disables the deadline"),
		),
	)
}

func fsCacheInvalidateTool() mcp.Tool {
	return mcp.NewTool("fs_cache_invalidate",
		mcp.WithDescription("Drop cached filesystem scans. With a path, only scans covering it are dropped."),
		mcp.WithString("path",
			mcp.Description("Invalidate scans whose root contains this path; empty drops everything"),
		),
	)
}

// --- Handlers ---

// parseDimension narrows a tool argument to the uint16 the engine clamps.
// Out-of-range values fall back to 0 (engine default).
func parseDimension(req mcp.CallToolRequest, key string) uint16 {
	v := mcp.ParseInt(req, key, 0)
	if v < 0 || v > int(^uint16(0)) {
		return 0
	}
	return uint16(v)
}

// parseEnv extracts the optional env object as a string map.
func parseEnv(req mcp.CallToolRequest) (map[string]string, error) {
	raw, ok := req.GetArguments()["env"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("env must be an object of string values")
	}
	env := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("env value for %q must be a string", k)
		}
		env[k] = s
	}
	return env, nil
}

func (s *Server) handlePtyRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.currentConfig()

	command := mcp.ParseString(req, "command", "")
	if strings.TrimSpace(command) == "" {
		return mcp.NewToolResultError("command is required"), nil
	}
	env, err := parseEnv(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runCfg := pty.RunConfig{
		Command:      command,
		Dir:          mcp.ParseString(req, "cwd", ""),
		Env:          env,
		Cols:         parseDimension(req, "cols"),
		Rows:         parseDimension(req, "rows"),
		PollInterval: cfg.PollInterval(),
	}
	if runCfg.Cols == 0 {
		runCfg.Cols = cfg.Terminal.Cols
	}
	if runCfg.Rows == 0 {
		runCfg.Rows = cfg.Terminal.Rows
	}

	// A session-bound run can be steered mid-flight with pty_write and
	// friends; a one-off run just executes to completion.
	var engine *pty.Session
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID != "" {
		sess, err := s.sessions.Get(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		engine = sess.Engine
	} else {
		engine = pty.NewSession()
	}

	timeoutMs := mcp.ParseInt(req, "timeout_ms", cfg.Terminal.DefaultTimeoutMs)
	tok := task.NewCancelToken(time.Duration(timeoutMs)*time.Millisecond, ctx)

	var out output
	fut, err := engine.Start(runCfg, tok, out.append)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slog.Debug("pty run started",
		slog.String("session_id", sessionID),
		slog.String("command", command),
	)

	res, err := fut.Wait()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runResponse{
		Output:    out.String(),
		ExitCode:  res.ExitCode,
		Cancelled: res.Cancelled,
		TimedOut:  res.TimedOut,
	})
}

// runResponse is the pty_run result payload.
type runResponse struct {
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code"`
	Cancelled bool   `json:"cancelled"`
	TimedOut  bool   `json:"timed_out"`
}

// output aggregates terminal chunks; the emitter goroutine appends while the
// handler later reads, so access is guarded.
type output struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *output) append(chunk string) {
	o.mu.Lock()
	o.b.WriteString(chunk)
	o.mu.Unlock()
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

func (s *Server) handlePtyWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	input := mcp.ParseString(req, "input", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if input == "" {
		return mcp.NewToolResultError("input is required"), nil
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.Engine.Write(input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("input written"), nil
}

func (s *Server) handlePtyResize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	cols := parseDimension(req, "cols")
	rows := parseDimension(req, "rows")
	if cols == 0 || rows == 0 {
		return mcp.NewToolResultError("cols and rows are required"), nil
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.Engine.Resize(cols, rows); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("terminal resized"), nil
}

func (s *Server) handlePtyKill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.Engine.Kill(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("kill signal sent"), nil
}

func (s *Server) handlePtySessionCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.sessions.Create()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slog.Info("session created", slog.String("session_id", sess.ID))
	return jsonResult(map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePtySessionClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if err := s.sessions.Close(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slog.Info("session closed", slog.String("session_id", sessionID))
	return mcp.NewToolResultText("session closed"), nil
}

func (s *Server) handlePtySessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := s.sessions.List()
	return jsonResult(map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Server) handleGlob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	fileType := mcp.ParseString(req, "file_type", "")
	opts := glob.Options{
		Pattern:     mcp.ParseString(req, "pattern", ""),
		Path:        path,
		FileType:    fscache.ParseEntryType(fileType),
		Hidden:      mcp.ParseBoolean(req, "hidden", false),
		MaxResults:  mcp.ParseInt(req, "max_results", 0),
		NoGitignore: mcp.ParseBoolean(req, "no_gitignore", false),
		Cache:       mcp.ParseBoolean(req, "cache", false),
		SortByMTime: mcp.ParseBoolean(req, "sort_by_mtime", false),
		Timeout:     time.Duration(mcp.ParseInt(req, "timeout_ms", 0)) * time.Millisecond,
	}
	if fileType != "" && opts.FileType == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("unknown file_type: %q", fileType)), nil
	}
	if raw, ok := req.GetArguments()["include_node_modules"]; ok && raw != nil {
		include := mcp.ParseBoolean(req, "include_node_modules", false)
		opts.IncludeNodeModules = &include
	}

	res, err := glob.Run(ctx, s.cache, opts, nil).Wait()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Cached roots get event-driven invalidation on top of TTL expiry.
	if opts.Cache && s.watcher != nil {
		if root, rerr := fscache.ResolveSearchPath(path); rerr == nil {
			if werr := s.watcher.Add(root); werr != nil {
				slog.Debug("cache watch failed", slog.String("root", root), slog.String("error", werr.Error()))
			}
		}
	}
	return jsonResult(res)
}

func (s *Server) handleFsCacheInvalidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	if path == "" {
		s.cache.InvalidateAll()
		return mcp.NewToolResultText("cache cleared"), nil
	}
	s.cache.InvalidatePath(path)
	return mcp.NewToolResultText("cache invalidated for path"), nil
}

// jsonResult converts a value to a JSON tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
