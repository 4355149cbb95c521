package jobs

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusphere/internal/deadline"
	"edusphere/internal/export"
	"edusphere/internal/queue"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, job Job) (export.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return export.Artifact{}, f.err
	}
	return export.Artifact{Filename: "bio-report.csv", ContentType: export.FormatCSV.ContentType(), Data: []byte("a,b\n")}, nil
}

func classReportJob() Job {
	return Job{
		Kind:   KindClassReport,
		Format: export.FormatCSV,
		UserID: "teacher-1",
		Role:   school.RoleTeacher,
		Report: &report.Request{ClassID: "class-1"},
	}
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name  string
		job   func() Job
		field string
	}{
		{"class report ok", classReportJob, ""},
		{"missing kind", func() Job { j := classReportJob(); j.Kind = ""; return j }, "kind"},
		{"json is not a job format", func() Job { j := classReportJob(); j.Format = export.FormatJSON; return j }, "format"},
		{"report input required", func() Job { j := classReportJob(); j.Report = nil; return j }, "report"},
		{"report input validated", func() Job { j := classReportJob(); j.Report = &report.Request{}; return j }, "class_id"},
		{"assignments pdf ok", func() Job {
			j := classReportJob()
			j.Kind, j.Format, j.Report = KindAssignments, export.FormatPDF, nil
			j.Deadlines = &deadline.Query{Priority: "overdue"}
			return j
		}, ""},
		{"assignments only as pdf", func() Job {
			j := classReportJob()
			j.Kind, j.Report = KindAssignments, nil
			return j
		}, "format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.job().Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *school.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Fields[0].Field)
		})
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	q := queue.NewInMemory(1)

	job, err := Submit(ctx, s, q, classReportJob())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusQueued, job.Status)

	stored, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, stored)

	_, err = Submit(ctx, s, q, Job{})
	assert.True(t, school.IsValidation(err))
}

func TestSubmitMarksUnpublishableJobFailed(t *testing.T) {
	s := NewMemoryStore()
	q := queue.NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Submit(ctx, s, q, classReportJob())
	require.Error(t, err)
	require.Len(t, s.jobs, 1)
	for _, j := range s.jobs {
		assert.Equal(t, StatusFailed, j.Status)
	}
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("done", func(t *testing.T) {
		s := NewMemoryStore()
		r := &fakeRenderer{}
		job, err := Submit(ctx, s, queue.NewInMemory(1), classReportJob())
		require.NoError(t, err)

		runner := NewRunner(s, nil, r, nil)
		require.NoError(t, runner.Handle(ctx, job.ID))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusDone, got.Status)
		assert.Equal(t, "bio-report.csv", got.Filename)

		art, err := s.Artifact(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n", string(art.Data))
		assert.Equal(t, "text/csv; charset=utf-8", art.ContentType)

		require.NoError(t, runner.Handle(ctx, job.ID))
		assert.Equal(t, 1, r.calls, "finished jobs are not rendered again")
	})

	t.Run("failure messages", func(t *testing.T) {
		tests := []struct {
			err  error
			want string
		}{
			{school.ErrEmptyClass, school.ErrEmptyClass.Error()},
			{&school.GatewayError{Op: "select", Collection: "grades", Err: errors.New("dial tcp: refused")}, "the data service is unavailable, please retry"},
			{errors.New("boom"), "export failed"},
		}
		for _, tc := range tests {
			s := NewMemoryStore()
			job, err := Submit(ctx, s, queue.NewInMemory(1), classReportJob())
			require.NoError(t, err)

			require.NoError(t, NewRunner(s, nil, &fakeRenderer{err: tc.err}, nil).Handle(ctx, job.ID))
			got, err := s.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, got.Status)
			assert.Equal(t, tc.want, got.Error)

			_, err = s.Artifact(ctx, job.ID)
			assert.ErrorIs(t, err, school.ErrNotFound)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		err := NewRunner(NewMemoryStore(), nil, &fakeRenderer{}, nil).Handle(ctx, "nope")
		assert.ErrorIs(t, err, school.ErrNotFound)
	})
}

func TestRunConsumesQueue(t *testing.T) {
	s := NewMemoryStore()
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := Submit(ctx, s, q, classReportJob())
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "other", Body: []byte("x")}))

	done := make(chan error, 1)
	go func() { done <- NewRunner(s, q, &fakeRenderer{}, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), job.ID)
		return err == nil && got.Status == StatusDone
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	s := NewRedisStore(client, time.Minute)

	_, err := s.Get(ctx, "missing-job")
	assert.ErrorIs(t, err, school.ErrNotFound)

	job := classReportJob()
	job.ID = "test-" + time.Now().Format("150405.000000")
	job.Status = StatusDone
	job.Filename = "x.csv"
	job.ContentType = "text/csv"
	require.NoError(t, s.Save(ctx, job))
	require.NoError(t, s.PutArtifact(ctx, job.ID, export.Artifact{Data: []byte("x")}))
	defer client.Del(ctx, jobKey(job.ID), dataKey(job.ID))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Filename, got.Filename)
	assert.Equal(t, job.Report.ClassID, got.Report.ClassID)

	art, err := s.Artifact(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, export.Artifact{Filename: "x.csv", ContentType: "text/csv", Data: []byte("x")}, art)

	ttl, err := client.TTL(ctx, jobKey(job.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "edusphere:job:abc", jobKey("abc"))
	assert.Equal(t, "edusphere:job:abc:data", dataKey("abc"))
}

// cancelStore fails every call made with a done context, like a network store.
type cancelStore struct {
	*MemoryStore
}

func (s cancelStore) Save(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Save(ctx, job)
}

func (s cancelStore) PutArtifact(ctx context.Context, id string, a export.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.PutArtifact(ctx, id, a)
}

type cancellingRenderer struct {
	cancel context.CancelFunc
}

func (r cancellingRenderer) Render(context.Context, Job) (export.Artifact, error) {
	r.cancel()
	return export.Artifact{Filename: "late.csv", Data: []byte("x")}, nil
}

func TestHandleRecordsOutcomeAfterShutdown(t *testing.T) {
	s := cancelStore{NewMemoryStore()}
	job, err := Submit(context.Background(), s, queue.NewInMemory(1), classReportJob())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewRunner(s, nil, cancellingRenderer{cancel}, nil).Handle(ctx, job.ID))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status, "the job must not stay running")
}
