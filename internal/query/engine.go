// Package query answers questions over a loaded index: it retrieves the
// top-ranked fragments, trims them to the prompt budget, asks the generator
// for an answer and returns the answer with its cited sources.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// DefaultTopK is the number of fragments retrieved per question when no
// other value is configured.
const DefaultTopK = 3

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("query: empty question")

// Index is the read side of a loaded index. *index.Index satisfies it.
type Index interface {
	// Retrieve returns the topK fragments most relevant to query, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]rag.Fragment, error)
	// Fingerprint identifies the indexed document set.
	Fingerprint() string
}

// Source is one cited fragment in a Response.
type Source struct {
	// Rank is the 1-based position in retrieval order; [n] in the answer
	// refers to Rank n.
	Rank int `json:"rank"`
	// Score is the retrieval similarity.
	Score float32 `json:"score"`
	// FragmentID identifies the fragment within the index.
	FragmentID string `json:"fragment_id"`
	// DocumentID is the document the fragment was cut from.
	DocumentID string `json:"document_id"`
	// Source is the origin file path.
	Source string `json:"source"`
	// Content is the fragment text passed to the generator, after trimming.
	Content string `json:"content"`
	// Metadata holds the document and fragment metadata (section, title).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response is the answer to one question.
type Response struct {
	// Question is the trimmed question that was answered.
	Question string `json:"question"`
	// Answer is the generated text.
	Answer string `json:"answer"`
	// Sources are the fragments the answer was grounded on, in rank order.
	Sources []Source `json:"sources"`
	// Fingerprint identifies the index that served the question.
	Fingerprint string `json:"fingerprint"`
	// Elapsed is the wall time spent answering.
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Options configures an Engine.
type Options struct {
	// TopK is the default fragment count; <= 0 selects DefaultTopK.
	TopK int
	// MaxContextTokens bounds the fragments passed to the generator;
	// <= 0 selects budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// Log, when set, records every answered question. Failures to log are
	// warnings, never errors.
	Log store.QueryLog
}

// Engine answers questions. It is safe for concurrent use; the index can be
// swapped while questions are in flight.
type Engine struct {
	// mu guards index.
	mu sync.RWMutex
	// index is the index questions are currently answered from.
	index Index

	// gen produces answers from retrieved fragments.
	gen generator.Generator
	// opts holds the normalised options.
	opts Options
}

// NewEngine constructs an Engine over ix.
func NewEngine(ix Index, gen generator.Generator, opts Options) (*Engine, error) {
	if ix == nil {
		return nil, fmt.Errorf("query: index must not be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("query: generator must not be nil")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Engine{index: ix, gen: gen, opts: opts}, nil
}

// Index returns the index currently serving questions.
func (e *Engine) Index() Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

// Swap replaces the serving index and returns the previous one. Questions
// already retrieving from the old index complete against it.
func (e *Engine) Swap(ix Index) Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.index
	e.index = ix
	return old
}

// Ask answers question with the default fragment count.
func (e *Engine) Ask(ctx context.Context, question string) (*Response, error) {
	return e.AskK(ctx, question, 0)
}

// AskK answers question from the top k fragments; k <= 0 uses the default.
// No retrieved fragments is not an error: the generator is still asked and
// told that no context was found.
func (e *Engine) AskK(ctx context.Context, question string, k int) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = e.opts.TopK
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	ix := e.Index()
	frags, err := ix.Retrieve(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("query: retrieve: %w", err)
	}

	trimmed := budget.TrimFragments(frags, e.opts.MaxContextTokens)
	if dropped := len(frags) - len(trimmed); dropped > 0 {
		log.Warn("budget: dropped fragments to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(trimmed)),
			slog.Int("max_tokens", e.opts.MaxContextTokens),
		)
	}

	answer, err := e.gen.Answer(ctx, question, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query: generate: %w", err)
	}

	resp := &Response{
		Question:    question,
		Answer:      answer,
		Sources:     toSources(trimmed),
		Fingerprint: ix.Fingerprint(),
		Elapsed:     time.Since(start),
	}

	log.Info("query: answered",
		slog.Int("fragments", len(resp.Sources)),
		slog.Duration("elapsed", resp.Elapsed),
	)
	e.record(ctx, resp)
	return resp, nil
}

func (e *Engine) record(ctx context.Context, resp *Response) {
	if e.opts.Log == nil {
		return
	}
	ids := make([]string, len(resp.Sources))
	for i, s := range resp.Sources {
		ids[i] = s.FragmentID
	}
	err := e.opts.Log.Append(ctx, store.Entry{
		Question:    resp.Question,
		Answer:      resp.Answer,
		Sources:     ids,
		Fingerprint: resp.Fingerprint,
		Elapsed:     resp.Elapsed,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("query: failed to record question", slog.Any("error", err))
	}
}

func toSources(frags []rag.Fragment) []Source {
	out := make([]Source, len(frags))
	for i, f := range frags {
		out[i] = Source{
			Rank:       i + 1,
			Score:      f.Score,
			FragmentID: f.ID,
			DocumentID: f.DocumentID,
			Source:     f.Source,
			Content:    f.Content,
			Metadata:   f.Metadata,
		}
	}
	return out
}
