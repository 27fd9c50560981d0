package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxReadFileBytes = 512 * 1024

// ReadFileTool returns a file's contents, truncated at 512 KiB.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from disk." }

func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
		"required": []any{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", path, err))
	}
	if info.IsDir() {
		items, err := os.ReadDir(path)
		if err != nil {
			return ErrorResult(fmt.Sprintf("read dir %s: %v", path, err))
		}
		names := make([]string, 0, len(items))
		for _, it := range items {
			names = append(names, it.Name())
		}
		payload, _ := json.Marshal(map[string]any{"path": path, "entries": names})
		return NewResult(string(payload))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", path, err))
	}
	truncated := false
	if len(data) > maxReadFileBytes {
		data = data[:maxReadFileBytes]
		truncated = true
	}
	payload, _ := json.Marshal(map[string]any{
		"path":      path,
		"content":   string(data),
		"truncated": truncated,
	})
	return NewResult(string(payload))
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file on disk." }

func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
			"append":  map[string]any{"type": "boolean"},
		},
		"required": []any{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("mkdir: %v", err))
	}
	if doAppend, _ := args["append"].(bool); doAppend {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return ErrorResult(fmt.Sprintf("open %s: %v", path, err))
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return ErrorResult(fmt.Sprintf("append %s: %v", path, err))
		}
	} else if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write %s: %v", path, err))
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}
