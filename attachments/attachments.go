package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedDataURI is returned by ParseDataURI for strings that are not
// of the form data:<mime>;base64,<payload>.
var ErrMalformedDataURI = errors.New("malformed data URI")

// Image is one inline attachment as sent by a client.
type Image struct {
	// Data is a data URI: data:<mime>;base64,<payload>.
	Data string `json:"data" yaml:"data"`
}

// Staged is the outcome of Stage.
type Staged struct {
	// Prompt is the prompt to send, with the attachment note appended when
	// any file was written.
	Prompt string

	// Files lists written paths in attachment order.
	Files []string

	// Dir is the per-request directory, empty when nothing was staged.
	Dir string
}

// Empty reports whether there is nothing to clean up.
func (s Staged) Empty() bool {
	return len(s.Files) == 0 && s.Dir == ""
}

// dirMode and fileMode keep staged attachments private to the relay user.
const (
	dirMode  = 0o700
	fileMode = 0o600
)

// StagingSubdir is where per-request directories are created, relative to
// the base directory passed to Stage.
var StagingSubdir = filepath.Join(".tmp", "images")

// ParseDataURI splits a data URI into its MIME type and decoded payload.
func ParseDataURI(uri string) (mime string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok || encoded == "" {
		return "", nil, ErrMalformedDataURI
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok || mime == "" || strings.Contains(mime, ";") {
		return "", nil, ErrMalformedDataURI
	}
	payload, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	return mime, payload, nil
}

// extensionFor maps a MIME type such as image/png to a file extension.
func extensionFor(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok || sub == "" {
		return "bin"
	}
	// image/svg+xml -> svg
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "jpeg" {
		return "jpg"
	}
	return sub
}

// Stage writes every well-formed attachment under baseDir and returns the
// prompt to use. It never returns an error: malformed entries are skipped
// and any other failure removes what was written and returns the original
// prompt. Diagnostics go to logger, or slog.Default() when it is nil.
func Stage(ctx context.Context, logger *slog.Logger, prompt string, images []Image, baseDir string) Staged {
	original := Staged{Prompt: prompt}
	if len(images) == 0 {
		return original
	}
	logger = orDefault(logger)

	staged, err := stage(ctx, logger, prompt, images, baseDir)
	if err != nil {
		logger.WarnContext(ctx, "attachment staging failed, continuing without attachments",
			slog.Any("error", err))
		Cleanup(ctx, logger, staged.Files, staged.Dir)
		return original
	}
	return staged
}

func stage(ctx context.Context, logger *slog.Logger, prompt string, images []Image, baseDir string) (Staged, error) {
	var out Staged
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return out, fmt.Errorf("resolve base directory: %w", err)
		}
		baseDir = wd
	}

	// Millisecond token; MkdirTemp adds a random suffix so concurrent
	// requests in the same millisecond never share a directory.
	parent := filepath.Join(baseDir, StagingSubdir)
	if err := os.MkdirAll(parent, dirMode); err != nil {
		return out, fmt.Errorf("create staging root: %w", err)
	}
	dir, err := os.MkdirTemp(parent, strconv.FormatInt(time.Now().UnixMilli(), 10)+"-")
	if err != nil {
		return out, fmt.Errorf("create staging dir: %w", err)
	}
	out.Dir = dir

	for i, img := range images {
		mime, payload, err := ParseDataURI(img.Data)
		if err != nil {
			logger.WarnContext(ctx, "skipping malformed attachment",
				slog.Int("index", i),
				slog.Any("error", err))
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("image_%d.%s", i, extensionFor(mime)))
		if err := os.WriteFile(path, payload, fileMode); err != nil {
			return out, fmt.Errorf("write attachment %d: %w", i, err)
		}
		out.Files = append(out.Files, path)
	}

	out.Prompt = prompt
	if len(out.Files) == 0 {
		Cleanup(ctx, logger, nil, out.Dir)
		out.Dir = ""
		return out, nil
	}
	if prompt != "" {
		out.Prompt = prompt + Note(out.Files)
	}
	return out, nil
}

// Note renders the text appended to a prompt to point the assistant at the
// staged files.
func Note(paths []string) string {
	var sb strings.Builder
	sb.WriteString("\n\n[Images provided at the following paths:]")
	for i, p := range paths {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, p)
	}
	return sb.String()
}

// Cleanup removes every path and then the directory. Failures are logged and
// swallowed, and calling it again or with empty inputs is a no-op.
func Cleanup(ctx context.Context, logger *slog.Logger, paths []string, dir string) {
	if len(paths) == 0 && dir == "" {
		return
	}
	logger = orDefault(logger)
	logger.DebugContext(ctx, "removing attachments",
		slog.Int("files", len(paths)),
		slog.String("dir", dir))

	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.WarnContext(ctx, "failed to remove attachment",
				slog.String("path", p),
				slog.Any("error", err))
		}
	}
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.WarnContext(ctx, "failed to remove attachment directory",
			slog.String("dir", dir),
			slog.Any("error", err))
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
