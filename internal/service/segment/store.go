package segment

import "sync"

// Store maps sentence ids to their records. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	ids     *Generator
	records map[uint64]*Record
}

// NewStore creates an empty store whose first sentence id is 1.
func NewStore() *Store {
	return &Store{
		ids:     New(),
		records: make(map[uint64]*Record),
	}
}

// RegisterRawSentence allocates the next sentence id with an empty raw record.
func (s *Store) RegisterRawSentence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids.Next()
	s.records[id] = &Record{activeVariant: VariantRaw}
	return id
}

// RecordPolished stores the polished text for id and returns the variant that
// is active afterwards. ok is false when id is unknown.
func (s *Store) RecordPolished(id uint64, text string, withinSLA bool) (Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return VariantRaw, false
	}
	return rec.recordPolished(text, withinSLA), true
}

// ApplySelection applies each selection it can and returns the applied ones in
// request order. Unknown ids and Polished requests without polished text are
// skipped.
func (s *Store) ApplySelection(selections []Selection) []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied []Selection
	for _, sel := range selections {
		rec, ok := s.records[sel.SentenceID]
		if !ok {
			continue
		}
		if rec.selectVariant(sel.ActiveVariant) {
			applied = append(applied, sel)
		}
	}
	return applied
}

// Get returns a copy of the record for id.
func (s *Store) Get(id uint64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len returns the number of registered sentences. Records are never removed,
// so this is the last allocated id.
func (s *Store) Len() int {
	return int(s.ids.Last())
}
