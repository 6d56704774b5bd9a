package command

// Duplicate is a code that appeared more than once in the table.
type Duplicate struct {
	Code string `json:"code"`

	// Count is how many extra rows were dropped (occurrences minus one).
	Count int `json:"count"`
}

// DuplicateReport summarises the rows NewRegistry dropped.
type DuplicateReport struct {
	// Sequences is the number of rows offered, duplicates included.
	Sequences int `json:"sequences"`

	// Duplicates lists each repeated code once, in order of first repeat.
	Duplicates []Duplicate `json:"duplicates"`
}

// Total returns the number of dropped rows.
func (d DuplicateReport) Total() int {
	total := 0
	for _, dup := range d.Duplicates {
		total += dup.Count
	}
	return total
}

// Codes returns the repeated codes in report order.
func (d DuplicateReport) Codes() []string {
	codes := make([]string, len(d.Duplicates))
	for i, dup := range d.Duplicates {
		codes[i] = dup.Code
	}
	return codes
}

// Registry is the live, read-only command table.
//
// A Registry never changes after NewRegistry returns, so it is safe for
// concurrent use without locking.
type Registry struct {
	byCode  map[string]Entry
	ordered []Entry
}

// NewRegistry builds a registry from entries in order.
//
// The first row for a code wins. Later rows with the same code are left
// out of the registry and counted in the returned report. An empty or
// nil slice yields a valid, empty registry.
func NewRegistry(entries []Entry) (*Registry, DuplicateReport) {
	r := &Registry{
		byCode:  make(map[string]Entry, len(entries)),
		ordered: make([]Entry, 0, len(entries)),
	}
	report := DuplicateReport{Sequences: len(entries)}

	// index into report.Duplicates by code
	dupIndex := make(map[string]int)

	for _, e := range entries {
		if _, exists := r.byCode[e.Code]; exists {
			if i, seen := dupIndex[e.Code]; seen {
				report.Duplicates[i].Count++
			} else {
				dupIndex[e.Code] = len(report.Duplicates)
				report.Duplicates = append(report.Duplicates, Duplicate{Code: e.Code, Count: 1})
			}
			continue
		}
		r.byCode[e.Code] = e
		r.ordered = append(r.ordered, e)
	}

	return r, report
}

// Lookup returns the entry whose code equals code exactly.
func (r *Registry) Lookup(code string) (Entry, bool) {
	e, ok := r.byCode[code]
	return e, ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Entries returns a copy of the live entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.ordered))
	copy(out, r.ordered)
	return out
}
