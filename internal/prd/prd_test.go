package prd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestPhaseListNext(t *testing.T) {
	tests := []struct {
		name   string
		tasks  PhaseList
		wantID string
		wantOK bool
	}{
		{
			name: "completed phase excluded and ties broken by id",
			tasks: PhaseList{
				{ID: "impl-002", Phase: 1, Status: StatusPending},
				{ID: "impl-001", Phase: 1, Status: StatusPending},
				{ID: "impl-003", Phase: 0, Status: StatusCompleted},
			},
			wantID: "impl-001",
			wantOK: true,
		},
		{
			name: "lower phase first",
			tasks: PhaseList{
				{ID: "a", Phase: 2, Status: StatusPending},
				{ID: "b", Phase: 1, Status: StatusInProgress},
			},
			wantID: "b",
			wantOK: true,
		},
		{
			name: "failed and blocked are skipped",
			tasks: PhaseList{
				{ID: "a", Phase: 0, Status: StatusFailed},
				{ID: "b", Phase: 0, Status: StatusBlocked},
				{ID: "c", Phase: 3, Status: StatusPending},
			},
			wantID: "c",
			wantOK: true,
		},
		{
			name:  "nothing pending",
			tasks: PhaseList{{ID: "a", Status: StatusCompleted}},
		},
		{
			name: "empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := tc.tasks.Next()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestStoryListNext(t *testing.T) {
	tests := []struct {
		name    string
		stories StoryList
		wantID  string
		wantOK  bool
	}{
		{
			name: "blocked by incomplete dependency",
			stories: StoryList{
				{ID: "A", Priority: 1, DependsOn: []string{"B"}},
				{ID: "B", Priority: 2},
				{ID: "C", Priority: 3},
			},
			wantID: "B",
			wantOK: true,
		},
		{
			name: "dependency satisfied",
			stories: StoryList{
				{ID: "A", Priority: 1, DependsOn: []string{"B"}},
				{ID: "B", Priority: 2, Passes: true},
			},
			wantID: "A",
			wantOK: true,
		},
		{
			name: "unknown dependency blocks",
			stories: StoryList{
				{ID: "A", Priority: 1, DependsOn: []string{"missing"}},
			},
		},
		{
			name: "priority tie keeps document order",
			stories: StoryList{
				{ID: "X", Priority: 1},
				{ID: "W", Priority: 1},
			},
			wantID: "X",
			wantOK: true,
		},
		{
			name:    "all pass",
			stories: StoryList{{ID: "A", Passes: true}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := tc.stories.Next()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want string
	}{
		{
			name: "max plus one",
			doc: &Document{Tasks: PhaseList{
				{ID: "impl-001"}, {ID: "impl-005"}, {ID: "impl-003"},
			}},
			want: "impl-006",
		},
		{
			name: "empty phase document",
			doc:  &Document{Tasks: PhaseList{}},
			want: "impl-001",
		},
		{
			name: "empty story document",
			doc:  &Document{Tasks: StoryList{}},
			want: "US-001",
		},
		{
			name: "prefix from first id",
			doc:  &Document{Tasks: StoryList{{ID: "story-9"}, {ID: "US-010"}}},
			want: "story-011",
		},
		{
			name: "ids without digits",
			doc:  &Document{Tasks: PhaseList{{ID: "setup"}}},
			want: "setup001",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.doc.NextID())
		})
	}
}

func TestProgressAndIsComplete(t *testing.T) {
	doc := &Document{Tasks: PhaseList{
		{ID: "a", Status: StatusCompleted},
		{ID: "b", Status: StatusPending},
		{ID: "c", Status: StatusFailed},
	}}
	assert.Equal(t, Progress{Total: 3, Completed: 1, Remaining: 2, Percentage: 33}, doc.Progress())
	assert.False(t, doc.IsComplete())

	stories := &Document{Tasks: StoryList{{ID: "a", Passes: true}, {ID: "b", Passes: true}}}
	assert.Equal(t, 100, stories.Progress().Percentage)
	assert.True(t, stories.IsComplete())

	empty := &Document{Tasks: PhaseList{}}
	assert.False(t, empty.IsComplete())
	assert.Equal(t, Progress{}, empty.Progress())
}

func TestDecodeForms(t *testing.T) {
	t.Run("phase form", func(t *testing.T) {
		doc, err := Decode([]byte(`{"name":"x","version":"1.0.0","tasks":[{"id":"impl-001","phase":1,"title":"t","status":"pending"}]}`))
		require.NoError(t, err)
		assert.Equal(t, FormPhase, doc.Form())
		assert.Equal(t, []string{"impl-001"}, doc.Tasks.IDs())
	})

	t.Run("story form", func(t *testing.T) {
		doc, err := Decode([]byte(`{"name":"x","userStories":[{"id":"US-001","title":"t","priority":1,"passes":false}]}`))
		require.NoError(t, err)
		assert.Equal(t, FormStory, doc.Form())
	})

	t.Run("empty story list keeps form", func(t *testing.T) {
		doc, err := Decode([]byte(`{"name":"x","userStories":[]}`))
		require.NoError(t, err)
		assert.Equal(t, FormStory, doc.Form())
	})

	t.Run("mixed forms rejected", func(t *testing.T) {
		_, err := Decode([]byte(`{"tasks":[{"id":"a"}],"userStories":[{"id":"b"}]}`))
		require.ErrorIs(t, err, ErrMixedForms)
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		_, err := Decode([]byte(`{"tasks":[{"id":"a"},{"id":"a"}]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Decode([]byte(`{not json`))
		require.Error(t, err)
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := New("demo", FormStory, now)

	data, err := Encode(doc)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "userStories").IsArray())
	assert.False(t, gjson.GetBytes(data, "tasks").Exists())
	assert.Contains(t, string(data), "\n  \"name\"")

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormStory, back.Form())
	assert.Equal(t, "demo", back.Name)
	assert.True(t, now.Equal(back.Metadata.CreatedAt))
}

func TestCloneIsDeep(t *testing.T) {
	doc := &Document{
		Tasks:       StoryList{{ID: "a", Findings: []string{"f"}}},
		ReviewTasks: []ReviewTask{{ID: "r", Findings: []string{"x"}}},
	}
	c := doc.Clone()
	c.Tasks.(StoryList)[0].Findings[0] = "changed"
	c.ReviewTasks[0].Findings[0] = "changed"

	if diff := cmp.Diff([]string{"f"}, doc.Tasks.(StoryList)[0].Findings); diff != "" {
		t.Errorf("original story findings changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, "x", doc.ReviewTasks[0].Findings[0])
}

func TestItemsExecutionOrder(t *testing.T) {
	doc := &Document{Tasks: PhaseList{
		{ID: "b", Phase: 2},
		{ID: "a", Phase: 1, Status: StatusCompleted},
		{ID: "c", Phase: 1},
	}}
	var ids []string
	for _, it := range doc.Items() {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
	assert.Equal(t, 2, doc.IndexOf("b"))
	assert.Equal(t, -1, doc.IndexOf("zzz"))

	it, ok := doc.Item("a")
	require.True(t, ok)
	assert.True(t, it.Done)
}
