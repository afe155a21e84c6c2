// Package ingest implements the transactional insertion pipeline: it
// authenticates the calling application, authorizes every record's
// target table, converts record fields into typed storage values, and
// commits the whole batch atomically.
package ingest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"evsink/internal/coltype"
	"evsink/internal/schema"
	"evsink/internal/store"
)

// TableField is the discriminator field naming a record's target table.
const TableField = "_t"

// Request is one ingestion batch as handed over by the transport.
// Events must be decoded with json.Decoder.UseNumber so that numeric
// narrowing behaves as specified.
type Request struct {
	AppID     string
	SecretKey string
	Events    []map[string]any
	Header    http.Header
}

// Ingester runs ingestion batches against the reconciled store. It
// holds only read-only shared state and is safe for concurrent use.
type Ingester struct {
	schema *schema.Schema
	store  *store.Store
	log    *slog.Logger
}

// New creates an Ingester over an already-reconciled store.
func New(sch *schema.Schema, st *store.Store, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{schema: sch, store: st, log: log}
}

// Ingest writes one batch of events. The batch is all-or-nothing: no
// event is durably visible unless every event converted and executed
// without error. Statement execution order equals record order.
func (in *Ingester) Ingest(ctx context.Context, req Request) error {
	app, ok := in.schema.Apps[req.AppID]
	if !ok {
		return &Error{Code: CodeNotFound, Message: "unknown app", AppID: req.AppID}
	}

	if subtle.ConstantTimeCompare([]byte(req.SecretKey), []byte(app.SecretKey)) != 1 {
		return &Error{Code: CodeForbidden, Message: "secret key mismatch", AppID: req.AppID}
	}

	// Authorize the entire batch before any write begins.
	tables := make([]string, len(req.Events))
	for i, event := range req.Events {
		name, ok := event[TableField].(string)
		if !ok {
			return &Error{
				Code:    CodeBadRequest,
				Message: fmt.Sprintf("event %d has no %q field naming its table", i, TableField),
				AppID:   req.AppID,
			}
		}
		if !app.Authorized(name) {
			return &Error{Code: CodeNotFound, Message: "unknown table", AppID: req.AppID, Table: name}
		}
		tables[i] = name
	}

	tx, err := in.store.Begin(ctx)
	if err != nil {
		in.log.Error("failed to begin transaction", "app_id", req.AppID, "error", err)
		return &Error{Code: CodeInternal, Message: "storage failure", AppID: req.AppID, Err: err}
	}
	defer tx.Rollback() // No-op if committed

	for i, event := range req.Events {
		table, ok := in.schema.Tables[tables[i]]
		if !ok {
			// Authorized tables always exist in the schema; a miss here
			// means the schema invariant was broken.
			return &Error{Code: CodeInternal, Message: "storage failure", AppID: req.AppID, Table: tables[i]}
		}

		args, err := in.convertEvent(table, event, req.Header)
		if err != nil {
			var convErr *coltype.ConversionError
			if errors.As(err, &convErr) {
				return &Error{
					Code:    CodeBadRequest,
					Message: convErr.Error(),
					AppID:   req.AppID,
					Table:   table.Name,
					Column:  convErr.Column,
					Err:     err,
				}
			}
			return &Error{Code: CodeInternal, Message: "storage failure", AppID: req.AppID, Err: err}
		}

		if err := in.store.InsertRow(ctx, tx, table.Name, args); err != nil {
			in.log.Error("failed to insert event", "app_id", req.AppID, "table", table.Name, "error", err)
			return &Error{Code: CodeInternal, Message: "storage failure", AppID: req.AppID, Table: table.Name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		in.log.Error("failed to commit batch", "app_id", req.AppID, "error", err)
		return &Error{Code: CodeInternal, Message: "storage failure", AppID: req.AppID, Err: err}
	}

	return nil
}

// convertEvent produces the insert arguments for one event, in the
// table's declared column order. Header-sourced columns read from the
// request headers instead of the record body.
func (in *Ingester) convertEvent(table *schema.Table, event map[string]any, header http.Header) ([]any, error) {
	args := make([]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		var raw any
		if col.Header != "" {
			if v := header.Get(col.Header); v != "" {
				raw = v
			}
		} else {
			raw = event[col.Name]
		}
		val, err := col.Type.Convert(col.Name, raw, col.Required)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return args, nil
}
