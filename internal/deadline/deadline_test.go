package deadline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusphere/internal/school"
)

const today = school.Date("2026-10-17")

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		status school.AssignmentStatus
		due    school.Date
		want   Priority
	}{
		{"yesterday", school.Pending, "2026-10-16", Overdue},
		{"long ago", school.Pending, "2025-01-01", Overdue},
		{"today", school.Pending, "2026-10-17", DueSoon},
		{"tomorrow", school.Pending, "2026-10-18", DueSoon},
		{"today plus two", school.Pending, "2026-10-19", DueSoon},
		{"today plus three", school.Pending, "2026-10-20", Pending},
		{"across month end", school.Pending, "2026-11-01", Pending},
		{"completed overdue", school.Completed, "2026-10-01", Completed},
		{"completed due soon", school.Completed, "2026-10-17", Completed},
		{"completed later", school.Completed, "2027-01-01", Completed},
		{"lower case completed", "completed", "2026-10-16", Completed},
		{"lower case pending overdue", " pending", "2026-10-16", Overdue},
		{"empty status past due", "", "2026-10-16", Pending},
		{"unknown status due today", "Archived", "2026-10-17", Pending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.due, today))
		})
	}
}

func TestClassifyWindowAcrossYearEnd(t *testing.T) {
	assert.Equal(t, DueSoon, Classify(school.Pending, "2027-01-01", "2026-12-30"))
	assert.Equal(t, Pending, Classify(school.Pending, "2027-01-02", "2026-12-30"))
}

func TestClassifyIsTotal(t *testing.T) {
	dues := []school.Date{"", "garbage", "2026-10-16", "2026-10-17", "2026-10-19", "2026-10-20", "9999-12-31"}
	statuses := []school.AssignmentStatus{school.Pending, school.Completed, "completed", "", "Archived"}
	for _, st := range statuses {
		for _, d := range dues {
			p := Classify(st, d, today)
			assert.Contains(t, Priorities, p)
			switch st {
			case school.Completed, "completed":
				assert.Equal(t, Completed, p)
			case "", "Archived":
				assert.Equal(t, Pending, p, "only Pending assignments become Overdue or DueSoon")
			}
		}
	}
}

func items(ps ...Priority) []Item {
	out := make([]Item, len(ps))
	for i, p := range ps {
		out[i] = Item{Priority: p}
	}
	return out
}

func TestSummarize(t *testing.T) {
	s := Summarize(items(Overdue, DueSoon, DueSoon, Pending, Completed, Completed))
	assert.Equal(t, Summary{Overdue: 1, DueSoon: 2, Pending: 1, Completed: 2, Total: 6, CompletionPercent: 33}, s)

	assert.Equal(t, 67, Summarize(items(Completed, Completed, Pending)).CompletionPercent)
	assert.Equal(t, 100, Summarize(items(Completed)).CompletionPercent)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestClassifiedAndGroup(t *testing.T) {
	as := []school.Assignment{
		{ID: "1", ClassID: "c1", Title: "Essay", DueDate: "2026-10-10", Status: school.Pending},
		{ID: "2", ClassID: "c2", Title: "Lab", DueDate: "2026-10-18", Status: school.Pending},
		{ID: "3", ClassID: "c1", Title: "Quiz", DueDate: "2026-10-10", Status: school.Completed},
		{ID: "4", ClassID: "c9", Title: "Poem", DueDate: "2026-10-09", Status: school.Pending},
	}
	got := Classified(as, map[string]string{"c1": "Biology", "c2": "Chemistry"}, today)
	require.Len(t, got, 4)
	assert.Equal(t, "Biology", got[0].ClassName)
	assert.Equal(t, "", got[3].ClassName)

	groups := GroupByPriority(got)
	require.Len(t, groups, 4)
	assert.Equal(t, "Overdue", groups[0].Label)
	assert.Equal(t, []string{"1", "4"}, ids(groups[0].Items))
	assert.Equal(t, []string{"2"}, ids(groups[1].Items))
	assert.Empty(t, groups[2].Items)
	assert.Equal(t, []string{"3"}, ids(groups[3].Items))
}

func ids(its []Item) []string {
	out := []string{}
	for _, it := range its {
		out = append(out, it.ID)
	}
	return out
}

func TestFilterApply(t *testing.T) {
	list := []Item{
		{Assignment: school.Assignment{ID: "1", Title: "Photosynthesis essay"}, ClassName: "Biology", Priority: Overdue},
		{Assignment: school.Assignment{ID: "2", Title: "Titration", Description: "bring goggles"}, ClassName: "Chemistry", Priority: DueSoon},
		{Assignment: school.Assignment{ID: "3", Title: "Cells"}, ClassName: "Biology", Priority: Pending},
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids(Filter{}.Apply(list)))
	assert.Equal(t, []string{"2"}, ids(Filter{Priority: DueSoon}.Apply(list)))
	assert.Equal(t, []string{"1", "3"}, ids(Filter{Search: "  BIOLOGY "}.Apply(list)))
	assert.Equal(t, []string{"2"}, ids(Filter{Search: "goggles"}.Apply(list)))
	assert.Equal(t, []string{}, ids(Filter{Priority: Overdue, Search: "cells"}.Apply(list)))
}

func TestSort(t *testing.T) {
	mk := func(id, title string, due school.Date, p Priority) Item {
		return Item{Assignment: school.Assignment{ID: id, Title: title, DueDate: due}, Priority: p}
	}
	base := []Item{
		mk("a", "zeta", "2026-10-20", Pending),
		mk("b", "Alpha", "2026-10-15", Overdue),
		mk("c", "beta", "2026-10-10", Completed),
		mk("d", "gamma", "2026-10-17", DueSoon),
		mk("e", "delta", "2026-10-12", Overdue),
	}

	list := append([]Item(nil), base...)
	Sort(list, ByPriority)
	assert.Equal(t, []string{"e", "b", "d", "a", "c"}, ids(list))

	list = append([]Item(nil), base...)
	Sort(list, ByDueDate)
	assert.Equal(t, []string{"c", "e", "b", "d", "a"}, ids(list))

	list = append([]Item(nil), base...)
	Sort(list, ByTitle)
	assert.Equal(t, []string{"b", "c", "e", "d", "a"}, ids(list))
}

func TestParse(t *testing.T) {
	p, err := ParsePriority("Due Soon")
	require.NoError(t, err)
	assert.Equal(t, DueSoon, p)
	p, err = ParsePriority("1")
	require.NoError(t, err)
	assert.Equal(t, Overdue, p)
	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, Priority(0), p)
	_, err = ParsePriority("urgent")
	assert.True(t, school.IsValidation(err))

	by, err := ParseSortBy("")
	require.NoError(t, err)
	assert.Equal(t, ByPriority, by)
	by, err = ParseSortBy("due")
	require.NoError(t, err)
	assert.Equal(t, ByDueDate, by)
	_, err = ParseSortBy("random")
	assert.Error(t, err)
}

func TestQueryParse(t *testing.T) {
	f, by, err := Query{Priority: "overdue", Search: "lab", Sort: "title"}.Parse()
	require.NoError(t, err)
	assert.Equal(t, Filter{Priority: Overdue, Search: "lab"}, f)
	assert.Equal(t, ByTitle, by)

	_, _, err = Query{Sort: "random"}.Parse()
	assert.True(t, school.IsValidation(err))
}
