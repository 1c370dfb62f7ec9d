package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/calcx/internal/compiler"
	"github.com/roach88/calcx/internal/translation"
)

// LoadResult contains the declarations loaded from a directory.
type LoadResult struct {
	Schema    *compiler.Schema
	Files     []string
	FileCount int
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs compiles every .cue file under dir as one set of declarations.
// All errors are *LoadError.
func LoadSpecs(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	schema, err := compiler.CompileFiles(files...)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Schema: schema, Files: files, FileCount: len(files)}, nil
}

// NewMap loads the declarations in dir and installs them in a new map.
func NewMap(dir string, logger *slog.Logger) (*LoadResult, *translation.Map, error) {
	res, err := LoadSpecs(dir)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("loaded declarations", "dir", dir, "files", res.FileCount, "types", len(res.Schema.Types))

	m, err := res.Schema.NewMap(translation.WithLogger(logger))
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return res, m, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE files could not be read
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed

	// Declaration errors
	ErrCodeInvalidType   = "E201" // Unknown or malformed type declaration
	ErrCodeInvalidMember = "E202" // Bad field, computed member or method
	ErrCodeInvalidExpr   = "E203" // Malformed expression body
	ErrCodeInvalidEnum   = "E204" // Bad enum declaration
	ErrCodeInvalidBase   = "E205" // Bad base translation

	// Query errors
	ErrCodeInvalidQuery = "E301" // Query could not be built or compiled
)

// MapFieldToErrorCode maps a compiler error field to an error code. Fields
// are the dotted declaration paths the compiler reports, e.g.
// "type.Account.computed.Status".
func MapFieldToErrorCode(field string) string {
	head, rest, _ := strings.Cut(field, ".")
	switch head {
	case "cue":
		return ErrCodeBuildFailed
	case "enum":
		return ErrCodeInvalidEnum
	case "base":
		return ErrCodeInvalidBase
	case "type":
		if _, member, _ := strings.Cut(rest, "."); member == "" || member == "extends" {
			return ErrCodeInvalidType
		}
		return ErrCodeInvalidMember
	case "field", "call", "static", "if", "eq", "ne", "and", "or", "is", "as", "raw", "const", "this", "expression":
		return ErrCodeInvalidExpr
	default:
		return ErrCodeGeneric
	}
}
