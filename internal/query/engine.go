package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/nlsql"
)

var ErrEmptyQuestion = errors.New("question is empty")

type Translator interface {
	Translate(ctx context.Context, question, requester string) (*nlsql.Statement, error)
}

type Runner interface {
	Execute(ctx context.Context, stmt string) (*Result, error)
}

type Auditor interface {
	Record(ctx context.Context, e AuditEntry) error
}

type Interpreter interface {
	Interpret(ctx context.Context, question string, columns []string, rows [][]any) (string, error)
}

// Answer is what a requester gets back for a question.
type Answer struct {
	ID          string        `json:"id"`
	Question    string        `json:"question"`
	SQL         string        `json:"sql"`
	Explanation string        `json:"explanation,omitempty"`
	Columns     []string      `json:"columns"`
	Rows        [][]any       `json:"rows"`
	RowCount    int           `json:"row_count"`
	Text        string        `json:"text"`
	Duration    time.Duration `json:"duration"`
}

// Engine answers questions: translate, execute, audit.
type Engine struct {
	tr        Translator
	run       Runner
	audit     Auditor
	interp    Interpreter
	showLimit int
	log       *logrus.Entry
}

func NewEngine(tr Translator, run Runner, audit Auditor) *Engine {
	return &Engine{tr: tr, run: run, audit: audit, showLimit: 20, log: logger.Module("query")}
}

// WithInterpreter renders answers through the model instead of plain text.
func (e *Engine) WithInterpreter(in Interpreter) *Engine {
	e.interp = in
	return e
}

// Ask answers one question. Exactly one audit row is written per call;
// when no statement was executed its SQL is NULL and its count zero.
func (e *Engine) Ask(ctx context.Context, requester, question string) (ans *Answer, err error) {
	id := uuid.NewString()
	start := time.Now()
	question = strings.TrimSpace(question)
	entry := AuditEntry{UserID: requester, Question: question}
	log := e.log.WithFields(logrus.Fields{"question_id": id, "requester": requester, "question": question})

	defer func() {
		// the audit row outlives a cancelled caller
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if aerr := e.audit.Record(actx, entry); aerr != nil {
			logger.LogError("query", "Ask", "audit", entry, aerr)
		}
		fields := logrus.Fields{"rows": entry.ResultCount, "duration_ms": time.Since(start).Milliseconds()}
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("question failed")
			return
		}
		log.WithFields(fields).WithField("sql", ans.SQL).Info("question answered")
	}()

	if question == "" {
		return nil, ErrEmptyQuestion
	}
	stmt, err := e.tr.Translate(ctx, question, requester)
	if err != nil {
		return nil, err
	}
	res, err := e.run.Execute(ctx, stmt.SQL)
	if err != nil {
		return nil, err
	}
	entry.SQL = &stmt.SQL
	entry.ResultCount = len(res.Rows)

	ans = &Answer{
		ID:          id,
		Question:    question,
		SQL:         stmt.SQL,
		Explanation: stmt.Explanation,
		Columns:     res.Columns,
		Rows:        res.Rows,
		RowCount:    len(res.Rows),
		Duration:    time.Since(start),
	}
	ans.Text = FormatPlain(res, e.showLimit)
	if e.interp != nil {
		if text, ierr := e.interp.Interpret(ctx, question, res.Columns, res.Rows); ierr == nil {
			ans.Text = text
		} else {
			log.WithError(ierr).Warn("interpretation failed, using plain format")
		}
	}
	return ans, nil
}
