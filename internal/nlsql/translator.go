// Package nlsql turns a natural-language question into one validated,
// read-only SQL statement over the schema catalog.
package nlsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/logger"
)

var tracer = otel.Tracer("github.com/deadloked8999/exeltest/internal/nlsql")

var ErrTranslationUnavailable = errors.New("translation unavailable")

// Statement is a translated and validated query.
type Statement struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation,omitempty"`
	Tables      []string `json:"tables"`
	Attempts    int      `json:"attempts"`
}

// Options configure a Translator.
type Options struct {
	Limits Limits
	// Timeout bounds each model call.
	Timeout time.Duration
	// RowLimit is the default LIMIT suggested to the model.
	RowLimit int
}

type Translator struct {
	llm  Completer
	cat  *catalog.Catalog
	opts Options
	log  *logrus.Entry
}

func NewTranslator(llm Completer, cat *catalog.Catalog, opts Options) *Translator {
	if opts.RowLimit <= 0 {
		opts.RowLimit = 100
	}
	return &Translator{llm: llm, cat: cat, opts: opts, log: logger.Module("nlsql")}
}

// Translate asks the model for SQL answering question. A failed call or a
// response without SQL is retried once with the compact schema; a statement
// that fails validation is rejected without retry.
func (t *Translator) Translate(ctx context.Context, question, requester string) (stmt *Statement, err error) {
	ctx, span := tracer.Start(ctx, "nlsql.Translate")
	span.SetAttributes(attribute.String("nlsql.requester", requester))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := t.log.WithField("requester", requester)
	var lastErr error
	for attempt, compact := range []bool{false, true} {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTranslationUnavailable, err)
		}
		sql, explanation, err := t.attempt(ctx, question, compact)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt+1).Warn("translation attempt failed")
			lastErr = err
			continue
		}
		tables, err := Validate(sql, t.cat, t.opts.Limits)
		if err != nil {
			log.WithFields(logrus.Fields{"sql": sql, "reason": err.Error()}).Warn("generated statement rejected")
			return nil, err
		}
		span.SetAttributes(attribute.Int("nlsql.attempts", attempt+1))
		log.WithFields(logrus.Fields{"sql": sql, "attempt": attempt + 1}).Info("question translated")
		return &Statement{SQL: sql, Explanation: explanation, Tables: tables, Attempts: attempt + 1}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrTranslationUnavailable, lastErr)
}

func (t *Translator) attempt(ctx context.Context, question string, compact bool) (string, string, error) {
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}
	content, err := t.llm.Complete(ctx, Prompt{
		System: systemPrompt(t.cat, compact, t.opts.RowLimit),
		User:   question,
	})
	if err != nil {
		return "", "", err
	}
	return extractSQL(content)
}
