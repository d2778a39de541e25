package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCancelOnErrorStopsSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("stream closed")

	s.Go("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Go("pipeline", func(ctx context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait err = %v, want %v", err, boom)
	}
	if s.Context().Err() == nil {
		t.Fatal("expected supervisor context to be cancelled")
	}
}

func TestPanicIsRecordedAsError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("bad event") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if s.Context().Err() != nil {
		t.Fatal("context should stay alive without cancel-on-error")
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 || len(c.Running) != 0 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestCountersListRunningNames(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	block := func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
	s.Go("pipeline", block)
	s.Go("config.watch", block)
	s.Go("config.watch", block)

	c := s.Counters()
	if c.Active != 3 || c.Started != 3 {
		t.Fatalf("counters = %+v", c)
	}
	if len(c.Running) != 2 || c.Running[0] != "config.watch" || c.Running[1] != "pipeline" {
		t.Fatalf("running = %v", c.Running)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c := s.Counters(); c.Active != 0 || len(c.Running) != 0 {
		t.Fatalf("after stop = %+v", c)
	}
}

func TestCanceledIsCleanStop(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return context.Canceled
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop err = %v, want nil", err)
	}
}
