// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cmgzone/notebookllm/lib/codec"
)

// ExportHeader is the first value in an export stream. It lets an
// archiver verify what it drained and when, before decoding entries.
type ExportHeader struct {
	Kind       string    `cbor:"kind"` // "file" or "shell"
	UserID     string    `cbor:"user_id"`
	EntryCount int64     `cbor:"entry_count"`
	ExportedAt time.Time `cbor:"exported_at"`
}

// ExportFile writes all of a user's file audit entries to w as a
// zstd-compressed CBOR sequence: one ExportHeader followed by one
// value per entry, oldest first. Entries stream row by row, so an
// export is never bounded by the interactive listing cap. The stream
// is self-delimiting; a reader decodes values until EOF.
func (s *Store) ExportFile(ctx context.Context, w io.Writer, userID string, exportedAt time.Time) error {
	return s.export(ctx, w, "file", userID, exportedAt, "file_audit_log",
		`SELECT id, user_id, action, path, success, error_code,
			byte_count, content_digest, duration_ms, created_at
		FROM file_audit_log WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		func(stmt *sqlite.Stmt, enc *codec.Encoder) error {
			entry := scanFileEntry(stmt)
			if err := enc.Encode(&entry); err != nil {
				return fmt.Errorf("encode file entry %s: %w", entry.ID, err)
			}
			return nil
		})
}

// ExportShell writes all of a user's shell audit entries to w in the
// same framing as ExportFile.
func (s *Store) ExportShell(ctx context.Context, w io.Writer, userID string, exportedAt time.Time) error {
	return s.export(ctx, w, "shell", userID, exportedAt, "shell_audit_log",
		`SELECT id, user_id, mode, command, args, cwd, success,
			exit_code, error_code, duration_ms, stdout_bytes, stderr_bytes,
			stdout_truncated, stderr_truncated, created_at
		FROM shell_audit_log WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		func(stmt *sqlite.Stmt, enc *codec.Encoder) error {
			entry, err := scanShellEntry(stmt)
			if err != nil {
				return err
			}
			if err := enc.Encode(&entry); err != nil {
				return fmt.Errorf("encode shell entry %s: %w", entry.ID, err)
			}
			return nil
		})
}

// export counts and then streams one log's rows inside a single
// transaction, so the header's EntryCount matches what follows even
// while appends continue on other connections.
func (s *Store) export(ctx context.Context, w io.Writer, kind, userID string, exportedAt time.Time, table, query string, encodeRow func(*sqlite.Stmt, *codec.Encoder) error) (err error) {
	if userID == "" {
		return fmt.Errorf("audit store: export: UserID is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit store: export %s: %w", kind, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("audit store: export %s: begin transaction: %w", kind, err)
	}
	defer endTransaction(&err)

	var count int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM "+table+" WHERE user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("audit store: export %s: count: %w", kind, err)
	}

	return writeExport(w, ExportHeader{
		Kind:       kind,
		UserID:     userID,
		EntryCount: count,
		ExportedAt: exportedAt,
	}, func(enc *codec.Encoder) error {
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				return encodeRow(stmt, enc)
			},
		})
		if err != nil {
			return fmt.Errorf("export %s for %s: %w", kind, userID, err)
		}
		return nil
	})
}

// writeExport frames an export stream: zstd around a deterministic
// CBOR encoder, header first. Closing the zstd writer flushes the
// final frame; failure to close means the stream is truncated, so the
// close error is not ignored.
func writeExport(w io.Writer, header ExportHeader, encodeEntries func(*codec.Encoder) error) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("audit store: zstd writer: %w", err)
	}

	enc := codec.NewEncoder(zw)
	if err := enc.Encode(header); err != nil {
		zw.Close()
		return fmt.Errorf("audit store: encode export header: %w", err)
	}
	if err := encodeEntries(enc); err != nil {
		zw.Close()
		return fmt.Errorf("audit store: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("audit store: finish export stream: %w", err)
	}
	return nil
}

// ReadExport decodes an export stream produced by ExportFile or
// ExportShell. The visit callback receives the header and a decoder
// positioned at the first entry; decode entries of the type named by
// header.Kind until io.EOF.
func ReadExport(r io.Reader, visit func(header ExportHeader, dec *codec.Decoder) error) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("audit store: zstd reader: %w", err)
	}
	defer zr.Close()

	dec := codec.NewDecoder(zr)
	var header ExportHeader
	if err := dec.Decode(&header); err != nil {
		return fmt.Errorf("audit store: decode export header: %w", err)
	}
	return visit(header, dec)
}
