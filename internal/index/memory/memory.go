// Package memory is an in-process implementation of the company index: an
// inverted index over name, alias, domain and phonetic terms with BM25
// ranking. It backs tests, local runs and benchmarks where no search
// service is available.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/normalize"
)

type entry struct {
	doc    index.Document
	terms  map[string]int
	length int
}

// Index is safe for concurrent use. Searches take a read lock; document
// writes take the write lock.
type Index struct {
	mu          sync.RWMutex
	postings    map[string]map[string]*Posting
	docs        map[string]*entry
	totalLength int64
	settings    index.Settings
}

var _ index.Index = (*Index)(nil)

// New creates an empty Index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]*Posting),
		docs:     make(map[string]*entry),
	}
}

// AddDocuments indexes docs. A document whose ID is already present replaces
// the earlier version.
func (m *Index) AddDocuments(ctx context.Context, docs []index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared := make([]*entry, 0, len(docs))
	for _, d := range docs {
		terms := documentTerms(d)
		length := 0
		for _, f := range terms {
			length += f
		}
		prepared = append(prepared, &entry{doc: d, terms: terms, length: length})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range prepared {
		id := e.doc.ID
		if old, ok := m.docs[id]; ok {
			m.removeLocked(id, old)
		}
		for term, freq := range e.terms {
			docs, ok := m.postings[term]
			if !ok {
				docs = make(map[string]*Posting)
				m.postings[term] = docs
			}
			docs[id] = &Posting{DocID: id, Frequency: freq}
		}
		m.docs[id] = e
		m.totalLength += int64(e.length)
	}
	return nil
}

func (m *Index) removeLocked(id string, e *entry) {
	for term := range e.terms {
		docs := m.postings[term]
		delete(docs, id)
		if len(docs) == 0 {
			delete(m.postings, term)
		}
	}
	delete(m.docs, id)
	m.totalLength -= int64(e.length)
}

// Search returns up to q.Limit documents sharing at least one term with the
// query, best BM25 score first.
func (m *Index) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := queryTerms(q)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docs) == 0 {
		return nil, nil
	}
	postingsPerTerm := make(map[string]PostingList, len(terms))
	for _, term := range terms {
		docs, ok := m.postings[term]
		if !ok {
			continue
		}
		list := make(PostingList, 0, len(docs))
		for _, p := range docs {
			list = append(list, *p)
		}
		postingsPerTerm[term] = list
	}
	if len(postingsPerTerm) == 0 {
		return nil, nil
	}

	params := rankParams{
		TotalDocs:    int64(len(m.docs)),
		AvgDocLength: float64(m.totalLength) / float64(len(m.docs)),
	}
	scored := rank(postingsPerTerm, params, func(docID string) int {
		return m.docs[docID].length
	}, q.Limit)

	hits := make([]index.Hit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, index.Hit{Record: m.docs[s.DocID].doc.Record(), Score: s.Score})
	}
	return hits, nil
}

// ApplySettings stores the settings. The in-process index has a fixed
// layout, so they only serve the setup ledger and Settings.
func (m *Index) ApplySettings(ctx context.Context, s index.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

// Settings returns the last applied settings.
func (m *Index) Settings() index.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Health always succeeds unless ctx is done.
func (m *Index) Health(ctx context.Context) error {
	return ctx.Err()
}

// Snapshot returns every term with its postings, both sorted.
func (m *Index) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.postings))
	for term, docs := range m.postings {
		postings := make(PostingList, 0, len(docs))
		for _, p := range docs {
			postings = append(postings, *p)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// DocCount returns the number of indexed documents.
func (m *Index) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Reset drops every document.
func (m *Index) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = make(map[string]map[string]*Posting)
	m.docs = make(map[string]*entry)
	m.totalLength = 0
}

func documentTerms(d index.Document) map[string]int {
	terms := make(map[string]int)
	add := func(term string) {
		if term != "" {
			terms[term]++
		}
	}
	for _, tok := range normalize.Tokens(d.NormalizedName) {
		add(tok)
	}
	for _, alias := range d.NormalizedAliases {
		for _, tok := range normalize.Tokens(alias) {
			add(tok)
		}
	}
	add(d.DomainPart)
	for _, g := range d.DomainNgrams {
		add(g)
	}
	phonetic := []string{d.CompanyPhonetic, d.DomainPhonetic}
	phonetic = append(phonetic, d.AliasPhonetic...)
	for _, codes := range phonetic {
		for _, code := range strings.Fields(codes) {
			add(phoneticPrefix + code)
		}
	}
	return terms
}

// queryTerms returns the distinct lookup terms for q: its tokens, the tokens
// joined together (to reach domain labels such as "healwithin") and its
// phonetic codes.
func queryTerms(q index.Query) []string {
	tokens := normalize.Tokens(q.Text)
	seen := make(map[string]struct{}, len(tokens)+len(q.Phonetic)+1)
	out := make([]string, 0, len(tokens)+len(q.Phonetic)+1)
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, tok := range tokens {
		add(tok)
	}
	if len(tokens) > 1 {
		add(strings.Join(tokens, ""))
	}
	for _, code := range q.Phonetic {
		add(phoneticPrefix + code)
	}
	return out
}
