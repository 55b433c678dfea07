// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

// Package export renders store snapshots as portable JSON documents.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Filename returns the conventional export name for a point in time,
// e.g. llmemo-export-2026-08-31.json.
func Filename(now time.Time) string {
	return fmt.Sprintf("llmemo-export-%s.json", now.UTC().Format("2006-01-02"))
}

// Write renders the snapshot as indented JSON.
func Write(w io.Writer, snap *store.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return llmemoerr.Wrap(err, llmemoerr.CodeExportWriteFailure, "encoding export")
	}
	return nil
}

// WriteFile exports the full store contents to a file in dir, named by
// Filename, and returns the path written.
func WriteFile(ctx context.Context, st store.Store, dir string) (string, error) {
	snap, err := st.ExportAll(ctx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, Filename(snap.ExportedAt))
	f, err := os.Create(path)
	if err != nil {
		return "", llmemoerr.Wrap(err, llmemoerr.CodeExportWriteFailure, "creating export file",
			llmemoerr.Field("path", path))
	}
	defer f.Close()

	if err := Write(f, snap); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", llmemoerr.Wrap(err, llmemoerr.CodeExportWriteFailure, "flushing export file",
			llmemoerr.Field("path", path))
	}
	return path, nil
}
