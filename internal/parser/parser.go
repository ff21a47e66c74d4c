// Package parser recovers structured records from raw provider payloads.
//
// Provider download endpoints return JSON in practice but not in contract:
// observed payloads include standard arrays, concatenated objects with no
// separator, JSON-lines, and JSON wrapped in log noise. Parse attempts a
// sequence of recovery tiers and returns the first set of records found.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// Parser applies tiered JSON recovery to raw payloads.
type Parser struct {
	logger *zap.Logger
}

// New constructs a Parser.
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse recovers a list of records from raw. Tiers are attempted in order
// and the first one yielding records short-circuits the rest:
//
//  1. whole-document parse
//  2. concatenated-object scan
//  3. line-oriented parse
//  4. prefix-trim parse
//
// If every tier yields zero records Parse returns a *ingest.ParseFailure
// describing the payload; the caller owns preserving the raw bytes.
func (p *Parser) Parse(raw []byte) ([]ingest.ParsedRecord, error) {
	if records, ok := p.parseWholeDocument(raw); ok {
		return records, nil
	}
	if records := p.parseConcatenated(raw); len(records) > 0 {
		return records, nil
	}
	if records := p.parseLines(raw); len(records) > 0 {
		return records, nil
	}
	if records, ok := p.parseTrimmedPrefix(raw); ok {
		return records, nil
	}

	failure := &ingest.ParseFailure{
		ByteLen:      len(raw),
		OpenBraces:   bytes.Count(raw, []byte("{")),
		CloseBraces:  bytes.Count(raw, []byte("}")),
		Concatenated: bytes.Contains(raw, []byte("}{")),
	}
	p.logger.Error("all parser tiers failed",
		zap.Int("bytes", failure.ByteLen),
		zap.Bool("balanced_braces", failure.Balanced()),
		zap.Bool("concatenated", failure.Concatenated),
	)
	return nil, failure
}

// parseWholeDocument treats raw as one JSON value. Arrays become the record
// list, a single object becomes a one-element list. Non-dictionary array
// elements are filtered rather than failing the tier.
func (p *Parser) parseWholeDocument(raw []byte) ([]ingest.ParsedRecord, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	switch v := value.(type) {
	case []any:
		records := filterRecords(v)
		return records, len(records) > 0
	case map[string]any:
		return []ingest.ParsedRecord{v}, true
	default:
		// A bare scalar is valid JSON but not a record.
		return nil, false
	}
}

// parseConcatenated scans for back-to-back JSON values, skipping whitespace
// between them. On a decode failure it searches forward for the next '{'
// and resumes there, discarding the intervening bytes as noise.
func (p *Parser) parseConcatenated(raw []byte) []ingest.ParsedRecord {
	var records []ingest.ParsedRecord
	idx := 0
	for idx < len(raw) {
		for idx < len(raw) && isSpace(raw[idx]) {
			idx++
		}
		if idx >= len(raw) {
			break
		}
		dec := json.NewDecoder(bytes.NewReader(raw[idx:]))
		var value any
		if err := dec.Decode(&value); err != nil {
			next := bytes.IndexByte(raw[idx+1:], '{')
			if next == -1 {
				break
			}
			idx += 1 + next
			continue
		}
		if record, ok := value.(map[string]any); ok {
			records = append(records, record)
		}
		idx += int(dec.InputOffset())
	}
	return records
}

// parseLines splits on newlines and parses each candidate line in
// isolation, keeping dictionary-shaped successes and silently dropping the
// rest.
func (p *Parser) parseLines(raw []byte) []ingest.ParsedRecord {
	var records []ingest.ParsedRecord
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (line[0] != '{' && line[0] != '[') {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(line), &value); err != nil {
			continue
		}
		if record, ok := value.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

// parseTrimmedPrefix locates the first '[' or '{' anywhere in the payload
// and retries a whole-document parse on the suffix from there.
func (p *Parser) parseTrimmedPrefix(raw []byte) ([]ingest.ParsedRecord, bool) {
	start := bytes.IndexByte(raw, '[')
	if start == -1 {
		start = bytes.IndexByte(raw, '{')
	}
	if start == -1 {
		return nil, false
	}
	return p.parseWholeDocument(raw[start:])
}

func filterRecords(values []any) []ingest.ParsedRecord {
	records := make([]ingest.ParsedRecord, 0, len(values))
	for _, v := range values {
		if record, ok := v.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
