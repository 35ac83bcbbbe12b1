package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/storage"
	"server/internal/watermark"

	stdimage "image"
)

func testPNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = seed
	}
	img.Set(0, 0, color.RGBA{R: seed, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	outputs []func() (*image.Candidate, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls >= len(g.outputs) {
		return nil, fmt.Errorf("unexpected generator call %d", g.calls+1)
	}
	out := g.outputs[g.calls]
	g.calls++
	return out()
}

func candidate(data []byte) func() (*image.Candidate, error) {
	return func() (*image.Candidate, error) {
		return &image.Candidate{Data: data, Format: "image/png"}, nil
	}
}

func transientFailure() (*image.Candidate, error) {
	return nil, errors.New("upstream timeout")
}

func refusal() (*image.Candidate, error) {
	return nil, &genai.RefusalError{Reason: "SAFETY"}
}

type fakeScorer struct {
	mu     sync.Mutex
	calls  int
	scores []float64
}

func (s *fakeScorer) Score(ctx context.Context, source, candidate []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.scores) {
		return 0, fmt.Errorf("unexpected scorer call %d", s.calls+1)
	}
	score := s.scores[s.calls]
	s.calls++
	return score, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.puts++
	return key, nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) Stream(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestJob(t *testing.T, jobs domain.JobRepository) *domain.Job {
	t.Helper()
	job := &domain.Job{ID: "job-1", Status: domain.JobStatusCreated, StyleID: "royal"}
	require.NoError(t, jobs.Create(context.Background(), job))
	return job
}

func newOrchestrator(jobs domain.JobRepository, store storage.ArtifactStore, gen image.Generator, scorer *fakeScorer) *Orchestrator {
	return NewOrchestrator(jobs, store, gen, scorer, watermark.Options{}, zerolog.New(io.Discard))
}

func TestRunEarlyExit(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	source := testPNG(t, 1)
	second := testPNG(t, 2)
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){
		candidate(testPNG(t, 9)),
		candidate(second),
		candidate(testPNG(t, 3)),
	}}
	scorer := &fakeScorer{scores: []float64{0.60, 0.91, 0.70}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	res, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         source,
		Prompt:            "royal portrait",
		MaxAttempts:       3,
		LikenessThreshold: 0.85,
	})
	require.NoError(t, err)

	require.Equal(t, 0.91, res.LikenessScore)
	require.Equal(t, 2, res.Attempts)
	require.True(t, res.Final)
	require.Equal(t, 2, gen.calls, "attempt 3 must not run after early exit")

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusGenerated, job.Status)
	require.NotEmpty(t, job.PreviewURL)
	require.NotEmpty(t, job.GeneratedURL)
	require.Len(t, job.Likeness.Attempts, 2)

	stored, err := store.Get(context.Background(), job.GeneratedURL)
	require.NoError(t, err)
	require.Equal(t, second, stored, "the winning candidate is the one persisted")
}

func TestRunExhaustionKeepsBest(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	first := testPNG(t, 4)
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){
		candidate(first),
		candidate(testPNG(t, 5)),
	}}
	scorer := &fakeScorer{scores: []float64{0.80, 0.75}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	res, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       2,
		LikenessThreshold: 0.99,
	})
	require.NoError(t, err)

	require.Equal(t, 0.80, res.LikenessScore)
	require.Equal(t, 2, res.Attempts)
	require.True(t, res.Final, "final stays true even below threshold")

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	stored, err := store.Get(context.Background(), job.GeneratedURL)
	require.NoError(t, err)
	require.Equal(t, first, stored)
}

func TestRunTiesKeepEarliestMaximum(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	first := testPNG(t, 6)
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){
		candidate(first),
		candidate(testPNG(t, 7)),
	}}
	scorer := &fakeScorer{scores: []float64{0.50, 0.50}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	_, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       2,
		LikenessThreshold: 0.99,
	})
	require.NoError(t, err)

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	stored, err := store.Get(context.Background(), job.GeneratedURL)
	require.NoError(t, err)
	require.Equal(t, first, stored)
}

func TestRunTransientFailuresAbsorbed(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){
		transientFailure,
		candidate(testPNG(t, 8)),
	}}
	scorer := &fakeScorer{scores: []float64{0.90}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	res, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       3,
		LikenessThreshold: 0.85,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, []domain.LikenessAttempt{
		{Attempt: 1, Score: 0},
		{Attempt: 2, Score: 0.90},
	}, job.Likeness.Attempts)
}

func TestRunNoCandidate(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){
		transientFailure,
		transientFailure,
	}}
	scorer := &fakeScorer{}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	_, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       2,
		LikenessThreshold: 0.85,
	})

	var noCandidate *NoCandidateError
	require.ErrorAs(t, err, &noCandidate)
	require.Equal(t, 2, noCandidate.Attempts)
	require.Equal(t, 0, store.puts, "no artifact write on total failure")

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusError, job.Status)
}

func TestRunRefusalAbortsImmediately(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){refusal}}
	scorer := &fakeScorer{}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	_, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       3,
		LikenessThreshold: 0.85,
	})

	require.True(t, image.IsRefusal(err))
	require.Equal(t, 1, gen.calls, "refusal is not retried")

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusError, job.Status)
}

func TestRunZeroScoreCandidateStillAccepted(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	data := testPNG(t, 10)
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){candidate(data)}}
	scorer := &fakeScorer{scores: []float64{0}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	res, err := o.Run(context.Background(), "job-1", Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       1,
		LikenessThreshold: 0.85,
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.LikenessScore)

	job, err := jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusGenerated, job.Status)
}

func TestRunResetsPrintReady(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	gen := &fakeGenerator{outputs: []func() (*image.Candidate, error){candidate(testPNG(t, 11))}}
	scorer := &fakeScorer{scores: []float64{0.90}}
	job := newTestJob(t, jobs)

	stale := "job-1/final.png"
	require.NoError(t, jobs.Update(context.Background(), job.ID, domain.JobPatch{PrintReadyURL: &stale}))

	o := newOrchestrator(jobs, store, gen, scorer)
	_, err := o.Run(context.Background(), job.ID, Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       1,
		LikenessThreshold: 0.85,
	})
	require.NoError(t, err)

	updated, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Empty(t, updated.PrintReadyURL, "fresh generation invalidates the finalized asset")
}

// gatedGenerator blocks inside Generate until released, so a test can hold a
// run in flight while more callers arrive.
type gatedGenerator struct {
	entered chan struct{}
	release chan struct{}
	calls   int32
	data    []byte
}

func (g *gatedGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Candidate, error) {
	if atomic.AddInt32(&g.calls, 1) == 1 {
		close(g.entered)
	}
	<-g.release
	return &image.Candidate{Data: g.data, Format: "image/png"}, nil
}

func TestRunDeduplicatesConcurrentCalls(t *testing.T) {
	jobs := repo.NewMemoryJobRepository()
	store := newMemStore()
	gen := &gatedGenerator{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		data:    testPNG(t, 12),
	}
	// One score only: a second generator run would overrun the script and
	// fail loudly.
	scorer := &fakeScorer{scores: []float64{0.90}}
	newTestJob(t, jobs)

	o := newOrchestrator(jobs, store, gen, scorer)
	params := Params{
		ImageData:         testPNG(t, 1),
		Prompt:            "p",
		MaxAttempts:       1,
		LikenessThreshold: 0.85,
	}

	type outcome struct {
		res *Result
		err error
	}
	outcomes := make(chan outcome, 2)
	run := func() {
		res, err := o.Run(context.Background(), "job-1", params)
		outcomes <- outcome{res: res, err: err}
	}

	go run()
	<-gen.entered
	go run()
	// Let the second caller reach the in-flight run before it completes.
	time.Sleep(50 * time.Millisecond)
	close(gen.release)

	first := <-outcomes
	second := <-outcomes
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	require.Equal(t, first.res, second.res, "both callers share the run's result")

	require.EqualValues(t, 1, atomic.LoadInt32(&gen.calls), "only one generator run for concurrent callers")
	require.Equal(t, 2, store.puts, "exactly one candidate and one preview written")
}

func TestRunValidatesParams(t *testing.T) {
	o := newOrchestrator(repo.NewMemoryJobRepository(), newMemStore(), &fakeGenerator{}, &fakeScorer{})

	cases := []struct {
		name  string
		jobID string
		p     Params
	}{
		{name: "missing job id", jobID: "", p: Params{ImageData: []byte{1}, MaxAttempts: 1, LikenessThreshold: 0.5}},
		{name: "missing image", jobID: "j", p: Params{MaxAttempts: 1, LikenessThreshold: 0.5}},
		{name: "zero attempts", jobID: "j", p: Params{ImageData: []byte{1}, MaxAttempts: 0, LikenessThreshold: 0.5}},
		{name: "threshold above one", jobID: "j", p: Params{ImageData: []byte{1}, MaxAttempts: 1, LikenessThreshold: 1.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tc.jobID, tc.p)
			require.Error(t, err)
		})
	}
}
