package httpclient

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSourceKind selects how the raw bytes of an upload are obtained.
type FileSourceKind string

const (
	FileSourceBase64   FileSourceKind = "base64"
	FileSourcePath     FileSourceKind = "path"
	FileSourceVariable FileSourceKind = "variable"
)

// maxFileSize caps upload content resolved from disk or variables.
const maxFileSize = 10 << 20 // 10 MiB

// FileSource describes where an upload's content comes from.
type FileSource struct {
	Kind      FileSourceKind `json:"kind"`
	Value     string         `json:"value"`
	FieldName string         `json:"fieldName"`
	FileName  string         `json:"fileName,omitempty"`
	MimeType  string         `json:"mimeType,omitempty"`
}

var (
	ErrFileTooLarge     = errors.New("file content exceeds size limit")
	ErrPathEscapesRoot  = errors.New("file path escapes the allowed root")
	ErrVariableNotFound = errors.New("file variable not found")
)

// ResolveFileContent returns the raw bytes for an upload. Path sources are
// confined to root: traversal outside it is rejected.
func ResolveFileContent(src FileSource, variables map[string]any, root string) ([]byte, error) {
	switch src.Kind {
	case FileSourceBase64:
		content, err := base64.StdEncoding.DecodeString(src.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}

		if len(content) > maxFileSize {
			return nil, ErrFileTooLarge
		}

		return content, nil
	case FileSourcePath:
		return readConfinedFile(src.Value, root)
	case FileSourceVariable:
		value, ok := variables[src.Value]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, src.Value)
		}

		content := []byte(fmt.Sprintf("%v", value))
		if len(content) > maxFileSize {
			return nil, ErrFileTooLarge
		}

		return content, nil
	default:
		return nil, fmt.Errorf("unknown file source kind %q", src.Kind)
	}
}

func readConfinedFile(path, root string) ([]byte, error) {
	if root == "" {
		return nil, ErrPathEscapesRoot
	}

	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) {
		return nil, ErrPathEscapesRoot
	}

	full := filepath.Join(root, cleaned)

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, ErrPathEscapesRoot
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Size() > maxFileSize {
		return nil, ErrFileTooLarge
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}
