package command

import (
	"reflect"
	"testing"
)

func TestNewRegistry_FirstWins(t *testing.T) {
	entries := []Entry{
		{Code: "#1", Description: "A", ActionTopic: "t/a"},
		{Code: "*2", Description: "B", ActionTopic: "t/b"},
		{Code: "#1", Description: "C", ActionTopic: "t/c"},
	}

	reg, report := NewRegistry(entries)

	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	got, ok := reg.Lookup("#1")
	if !ok {
		t.Fatal("Lookup(#1) not found")
	}
	if got.Description != "A" {
		t.Errorf("Lookup(#1).Description = %q, want first row %q", got.Description, "A")
	}

	if report.Sequences != 3 {
		t.Errorf("Sequences = %d, want 3", report.Sequences)
	}
	if report.Total() != 1 {
		t.Errorf("Total() = %d, want 1", report.Total())
	}
	want := []Duplicate{{Code: "#1", Count: 1}}
	if !reflect.DeepEqual(report.Duplicates, want) {
		t.Errorf("Duplicates = %+v, want %+v", report.Duplicates, want)
	}
}

func TestNewRegistry_RepeatedDuplicates(t *testing.T) {
	entries := []Entry{
		{Code: "*5", Description: "first"},
		{Code: "#9", Description: "nine"},
		{Code: "#9", Description: "nine again"},
		{Code: "*5", Description: "second"},
		{Code: "*5", Description: "third"},
	}

	reg, report := NewRegistry(entries)

	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	if report.Total() != 3 {
		t.Errorf("Total() = %d, want 3", report.Total())
	}
	if codes := report.Codes(); !reflect.DeepEqual(codes, []string{"#9", "*5"}) {
		t.Errorf("Codes() = %v, want [#9 *5] in order of first repeat", codes)
	}
	if e, _ := reg.Lookup("*5"); e.Description != "first" {
		t.Errorf("Lookup(*5).Description = %q, want %q", e.Description, "first")
	}
}

func TestNewRegistry_Empty(t *testing.T) {
	for _, entries := range [][]Entry{nil, {}} {
		reg, report := NewRegistry(entries)

		if reg.Len() != 0 {
			t.Errorf("Len() = %d, want 0", reg.Len())
		}
		if _, ok := reg.Lookup("#100"); ok {
			t.Error("Lookup() on empty registry found an entry")
		}
		if report.Sequences != 0 || report.Total() != 0 {
			t.Errorf("report = %+v, want zero", report)
		}
		if len(reg.Entries()) != 0 {
			t.Errorf("Entries() = %v, want empty", reg.Entries())
		}
	}
}

func TestLookup_ExactMatch(t *testing.T) {
	reg, _ := NewRegistry([]Entry{{Code: "#100"}})

	for _, code := range []string{"#10", "#1000", " #100", "100", ""} {
		if _, ok := reg.Lookup(code); ok {
			t.Errorf("Lookup(%q) found an entry, want exact match only", code)
		}
	}
	if _, ok := reg.Lookup("#100"); !ok {
		t.Error("Lookup(#100) not found")
	}
}

func TestEntries_RegistrationOrderAndCopy(t *testing.T) {
	reg, _ := NewRegistry([]Entry{
		{Code: "*3"}, {Code: "#1"}, {Code: "*2"}, {Code: "#1"},
	})

	got := reg.Entries()
	var codes []string
	for _, e := range got {
		codes = append(codes, e.Code)
	}
	if !reflect.DeepEqual(codes, []string{"*3", "#1", "*2"}) {
		t.Errorf("Entries() codes = %v, want [*3 #1 *2]", codes)
	}

	got[0].Code = "mutated"
	if e := reg.Entries()[0]; e.Code != "*3" {
		t.Error("Entries() exposed internal storage")
	}
}
