// Package deadline classifies assignments by urgency and aggregates them for
// the deadlines view and the assignment export.
package deadline

import (
	"math"
	"sort"
	"strings"

	"edusphere/internal/school"
)

// Priority is the derived urgency class of an assignment. Lower is more urgent.
type Priority int

const (
	Overdue   Priority = 1
	DueSoon   Priority = 2
	Pending   Priority = 3
	Completed Priority = 4
)

// SoonWindowDays is how many days after today still count as due soon.
const SoonWindowDays = 2

// Priorities lists every class in rendering order.
var Priorities = []Priority{Overdue, DueSoon, Pending, Completed}

func (p Priority) String() string {
	switch p {
	case Overdue:
		return "Overdue"
	case DueSoon:
		return "Due Soon"
	case Pending:
		return "Pending"
	case Completed:
		return "Completed"
	}
	return "Unknown"
}

// Slug is the lowercase identifier used in query strings and metric labels.
func (p Priority) Slug() string {
	switch p {
	case Overdue:
		return "overdue"
	case DueSoon:
		return "due_soon"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	}
	return ""
}

// ParsePriority accepts a slug, a display name or a number 1-4. The empty
// string yields 0, meaning no restriction.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return 0, nil
	}
	for _, p := range Priorities {
		if s == p.Slug() || s == strings.ToLower(p.String()) || s == string(rune('0'+int(p))) {
			return p, nil
		}
	}
	return 0, school.NewValidationError(school.FieldError{Field: "priority", Error: "must be one of: overdue due_soon pending completed"})
}

// Classify returns the priority of an assignment. Dates compare as
// YYYY-MM-DD strings, so no time-of-day or zone enters the decision.
// Only Pending assignments can be Overdue or DueSoon; any other unfinished
// status is Pending.
func Classify(status school.AssignmentStatus, due, today school.Date) Priority {
	switch status.Canonical() {
	case school.Completed:
		return Completed
	case school.Pending:
		if due < today {
			return Overdue
		}
		if due <= today.AddDays(SoonWindowDays) {
			return DueSoon
		}
	}
	return Pending
}

// Item is an assignment with its class label and computed priority.
type Item struct {
	school.Assignment
	ClassName string   `json:"class_name"`
	Priority  Priority `json:"priority"`
}

// Classified wraps assignments as items, resolving class names from classes.
func Classified(assignments []school.Assignment, classes map[string]string, today school.Date) []Item {
	items := make([]Item, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, Item{
			Assignment: a,
			ClassName:  classes[a.ClassID],
			Priority:   Classify(a.Status, a.DueDate, today),
		})
	}
	return items
}

// Summary counts items per priority.
type Summary struct {
	Overdue           int `json:"overdue"`
	DueSoon           int `json:"due_soon"`
	Pending           int `json:"pending"`
	Completed         int `json:"completed"`
	Total             int `json:"total"`
	CompletionPercent int `json:"completion_percent"`
}

// Summarize counts items per class. An empty set is 0% complete.
func Summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		switch it.Priority {
		case Overdue:
			s.Overdue++
		case DueSoon:
			s.DueSoon++
		case Pending:
			s.Pending++
		case Completed:
			s.Completed++
		}
	}
	s.Total = len(items)
	denom := s.Total
	if denom == 0 {
		denom = 1
	}
	s.CompletionPercent = int(math.Round(float64(s.Completed) / float64(denom) * 100))
	return s
}

// Group is one priority's section of items.
type Group struct {
	Priority Priority `json:"priority"`
	Label    string   `json:"label"`
	Items    []Item   `json:"items"`
}

// GroupByPriority splits items into the four classes in rendering order.
// Every class is present, possibly empty; item order within a class is kept.
func GroupByPriority(items []Item) []Group {
	groups := make([]Group, len(Priorities))
	for i, p := range Priorities {
		groups[i] = Group{Priority: p, Label: p.String(), Items: []Item{}}
	}
	for _, it := range items {
		if it.Priority >= Overdue && it.Priority <= Completed {
			g := &groups[it.Priority-1]
			g.Items = append(g.Items, it)
		}
	}
	return groups
}

// Filter restricts items. A zero Priority matches all; Search matches title,
// description or class name case-insensitively.
type Filter struct {
	Priority Priority
	Search   string
}

// Apply returns the items matching f, preserving order.
func (f Filter) Apply(items []Item) []Item {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if f.Priority != 0 && it.Priority != f.Priority {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Title), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) &&
			!strings.Contains(strings.ToLower(it.ClassName), q) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// SortBy names an ordering.
type SortBy string

const (
	ByPriority SortBy = "priority"
	ByDueDate  SortBy = "due_date"
	ByTitle    SortBy = "title"
)

// ParseSortBy defaults to ByPriority.
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ByPriority:
		return ByPriority, nil
	case ByDueDate, "due":
		return ByDueDate, nil
	case ByTitle:
		return ByTitle, nil
	}
	return "", school.NewValidationError(school.FieldError{Field: "sort", Error: "must be one of: priority due_date title"})
}

// Sort orders items in place. ByPriority breaks ties by due date, ByDueDate
// by priority; both finally by title. The sort is stable.
func Sort(items []Item, by SortBy) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case ByDueDate:
			if a.DueDate != b.DueDate {
				return a.DueDate < b.DueDate
			}
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
		case ByTitle:
		default:
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if a.DueDate != b.DueDate {
				return a.DueDate < b.DueDate
			}
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
}

// Query is the request form of a deadlines listing.
type Query struct {
	ClassID  string `json:"class_id,omitempty"`
	Priority string `json:"priority,omitempty"`
	Search   string `json:"search,omitempty"`
	Sort     string `json:"sort,omitempty"`
}

// Parse converts q into a Filter and an ordering.
func (q Query) Parse() (Filter, SortBy, error) {
	p, err := ParsePriority(q.Priority)
	if err != nil {
		return Filter{}, "", err
	}
	by, err := ParseSortBy(q.Sort)
	if err != nil {
		return Filter{}, "", err
	}
	return Filter{Priority: p, Search: q.Search}, by, nil
}
