package api

import (
	"testing"

	"github.com/structweave/stb2ifc/core/model"
)

func TestJobStoreLifecycle(t *testing.T) {
	store := NewJobStore()

	job := store.Create("model.stb", model.ModeHybrid)
	if job.Status != JobStatusPending || job.ID == "" {
		t.Fatalf("created job = %+v", job)
	}

	store.SetRunning(job.ID, 40)
	got, ok := store.Get(job.ID)
	if !ok || got.Status != JobStatusRunning || got.Progress != 40 {
		t.Fatalf("running job = %+v", got)
	}

	result := model.NewConversionResult()
	result.Statistics.CreatedElements = 7
	result.Warnings = []string{"one warning"}
	store.Complete(job.ID, result, []byte("output"))

	got, _ = store.Get(job.ID)
	if got.Status != JobStatusCompleted || got.Progress != 100 {
		t.Fatalf("completed job = %+v", got)
	}
	if got.Statistics == nil || got.Statistics.CreatedElements != 7 {
		t.Fatalf("Statistics = %+v", got.Statistics)
	}
	if got.OutputBytes != 6 || got.CompletedAt == nil {
		t.Fatalf("completed job = %+v", got)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("Warnings = %v", got.Warnings)
	}

	output, ok := store.Output(job.ID)
	if !ok || string(output) != "output" {
		t.Fatalf("Output = %q, %v", output, ok)
	}
}

func TestJobStoreFail(t *testing.T) {
	store := NewJobStore()
	job := store.Create("model.stb", model.ModeAuto)
	store.Fail(job.ID, "broke")

	got, _ := store.Get(job.ID)
	if got.Status != JobStatusFailed || got.Error != "broke" {
		t.Fatalf("failed job = %+v", got)
	}
	if _, ok := store.Output(job.ID); ok {
		t.Fatal("failed job must have no output")
	}
}

func TestJobStoreOutputBeforeCompletion(t *testing.T) {
	store := NewJobStore()
	job := store.Create("model.stb", model.ModeAuto)
	if _, ok := store.Output(job.ID); ok {
		t.Fatal("pending job must have no output")
	}
}

func TestJobStoreGetUnknown(t *testing.T) {
	store := NewJobStore()
	if _, ok := store.Get("missing"); ok {
		t.Fatal("want miss for unknown id")
	}
}

func TestJobStoreListNewestFirst(t *testing.T) {
	store := NewJobStore()
	store.Create("a.stb", model.ModeAuto)
	store.Create("b.stb", model.ModeAuto)

	jobs := store.List()
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].CreatedAt.Before(jobs[1].CreatedAt) {
		t.Fatal("jobs not sorted newest first")
	}
}
