package core

import (
	"context"
	"entitystore/pkg/domain"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	mustAdd(t, store, person("1", "John", "Robert", "Doe", "Male", "United States"))
	if err := store.Add(ctx, person("1", "Other", "", "Person", "Female", "France")); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if got := snapshotIDs(t, store); len(got) != 1 {
		t.Fatalf("duplicate add changed the collection: %v", got)
	}

	got, err := store.GetByID(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Names[0].FirstName != "John" {
		t.Fatalf("unexpected entity: %+v", got)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateReplacesAllFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	mustAdd(t, store, person("1", "John", "Robert", "Doe", "Male", "United States"))

	replacement := domain.Entity{
		ID:       "1",
		Names:    []domain.Name{{FirstName: "Johnny", Surname: "Dee"}, {FirstName: "J"}},
		Dates:    []domain.Date{{DateType: "Death", DateValue: ts(2020, time.May, 5)}},
		Gender:   "Other",
		Deceased: true,
	}
	if err := store.Update(ctx, replacement); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetByID(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(replacement, got); diff != "" {
		t.Fatalf("update did not replace fields (-want +got):\n%s", diff)
	}

	if err := store.Update(ctx, person("nope", "", "", "", "", "")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeleteCompleteness(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	mustAdd(t, store,
		person("1", "A", "", "A", "Male", "X"),
		person("2", "B", "", "B", "Male", "X"),
		person("3", "C", "", "C", "Male", "X"),
	)
	if err := store.Delete(ctx, "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByID(ctx, "2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted entity to be absent, got %v", err)
	}
	if diff := cmp.Diff([]string{"1", "3"}, snapshotIDs(t, store)); diff != "" {
		t.Fatalf("unexpected remaining ids (-want +got):\n%s", diff)
	}
	if err := store.Delete(ctx, "2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStoreCallerCannotAliasStoredEntity(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	in := person("1", "John", "Robert", "Doe", "Male", "United States")
	mustAdd(t, store, in)
	in.Names[0].FirstName = "Changed"
	*in.Dates[0].DateValue = time.Time{}

	got, _ := store.GetByID(ctx, "1")
	if got.Names[0].FirstName != "John" || got.Dates[0].DateValue.IsZero() {
		t.Fatalf("stored entity aliased caller value: %+v", got)
	}
}

func TestStoreRetryBoundExhaustsThreeAttempts(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		run  func(*Store) error
	}{
		{"add", func(s *Store) error { return s.Add(ctx, person("new", "N", "", "N", "", "")) }},
		{"update", func(s *Store) error { return s.Update(ctx, person("1", "Changed", "", "", "", "")) }},
		{"delete", func(s *Store) error { return s.Delete(ctx, "1") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			backend := newFlakyBackend(0)
			waits := &waitRecorder{}
			store := NewStore(backend, WithWaitFunc(waits.wait))
			mustAdd(t, store, person("1", "John", "Robert", "Doe", "Male", "United States"))
			before, _ := store.GetAll(ctx)

			backend.failures = -1
			start := backend.Calls()
			err := tc.run(store)

			if !errors.Is(err, domain.ErrTransientFailure) {
				t.Fatalf("expected ErrTransientFailure, got %v", err)
			}
			if !errors.Is(err, errFlaky) {
				t.Fatalf("expected last cause to be wrapped, got %v", err)
			}
			var tf *domain.TransientFailureError
			if !errors.As(err, &tf) || tf.Attempts != 3 || tf.Operation != tc.name {
				t.Fatalf("unexpected failure detail: %+v", tf)
			}
			if n := backend.Calls() - start; n != 3 {
				t.Fatalf("expected exactly 3 attempts, got %d", n)
			}
			want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
			if diff := cmp.Diff(want, waits.Delays()); diff != "" {
				t.Fatalf("backoff schedule (-want +got):\n%s", diff)
			}
			after, _ := store.GetAll(ctx)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("failed mutation changed state (-before +after):\n%s", diff)
			}
		})
	}
}

func TestStoreRetryRecoversFromTransientFailure(t *testing.T) {
	backend := newFlakyBackend(2)
	waits := &waitRecorder{}
	store := NewStore(backend, WithWaitFunc(waits.wait))

	if err := store.Add(context.Background(), person("1", "John", "", "Doe", "Male", "US")); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if backend.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", backend.Calls())
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, waits.Delays()); diff != "" {
		t.Fatalf("backoff schedule (-want +got):\n%s", diff)
	}
	if got := snapshotIDs(t, store); len(got) != 1 {
		t.Fatalf("expected one stored entity, got %v", got)
	}
}

func TestStoreTerminalOutcomesAreNotRetried(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend(0)
	waits := &waitRecorder{}
	store := NewStore(backend, WithWaitFunc(waits.wait))
	mustAdd(t, store, person("1", "John", "", "Doe", "Male", "US"))
	start := backend.Calls()

	if err := store.Add(ctx, person("1", "Dup", "", "", "", "")); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := store.Update(ctx, person("2", "", "", "", "", "")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := backend.Calls() - start; n != 3 {
		t.Fatalf("expected one attempt per call, got %d calls", n)
	}
	if len(waits.Delays()) != 0 {
		t.Fatalf("terminal outcomes must not back off: %v", waits.Delays())
	}
}

func TestStoreRecoversPanickingAttempt(t *testing.T) {
	backend := newFlakyBackend(0)
	backend.panics = 1
	waits := &waitRecorder{}
	store := NewStore(backend, WithWaitFunc(waits.wait))

	if err := store.Add(context.Background(), person("1", "John", "", "Doe", "Male", "US")); err != nil {
		t.Fatalf("expected retry after panic to succeed, got %v", err)
	}
	if backend.Calls() != 2 || len(waits.Delays()) != 1 {
		t.Fatalf("expected one retry, calls=%d waits=%v", backend.Calls(), waits.Delays())
	}
}

func TestStoreBackoffHonoursContext(t *testing.T) {
	backend := newFlakyBackend(-1)
	store := NewStore(backend, WithRetryPolicy(RetryPolicy{Attempts: 3, InitialDelay: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Add(ctx, person("1", "John", "", "Doe", "Male", "US"))
	if !errors.Is(err, domain.ErrTransientFailure) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected transient failure wrapping context.Canceled, got %v", err)
	}
	if backend.Calls() != 1 {
		t.Fatalf("expected the loop to stop after the first wait, got %d calls", backend.Calls())
	}
}

func TestRetryPolicyDelays(t *testing.T) {
	cases := []struct {
		policy RetryPolicy
		want   []time.Duration
	}{
		{DefaultRetryPolicy(), []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{RetryPolicy{Attempts: 0, InitialDelay: time.Millisecond}, []time.Duration{time.Millisecond}},
		{RetryPolicy{Attempts: 2, InitialDelay: -time.Second}, []time.Duration{0, 0}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, c.policy.Delays()); diff != "" {
			t.Errorf("Delays(%+v) (-want +got):\n%s", c.policy, diff)
		}
	}
	if got := NewStore(nil, WithRetryPolicy(RetryPolicy{Attempts: math.MaxInt})).RetryPolicy(); got.Attempts != MaxRetryAttempts {
		t.Fatalf("expected attempts capped at %d, got %+v", MaxRetryAttempts, got)
	}
	for _, d := range (RetryPolicy{Attempts: MaxRetryAttempts, InitialDelay: math.MaxInt64 / 4}).Delays() {
		if d <= 0 {
			t.Fatalf("delay overflowed: %v", d)
		}
	}
	if got := NewStore(nil, WithRetryPolicy(RetryPolicy{})).RetryPolicy(); got.Attempts != 1 {
		t.Fatalf("expected normalized policy, got %+v", got)
	}
}

func TestWaitContext(t *testing.T) {
	if err := waitContext(context.Background(), 0); err != nil {
		t.Fatalf("zero wait: %v", err)
	}
	if err := waitContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("short wait: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreConcurrentMutationsKeepIDsUnique(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		id := fmt.Sprintf("id-%d", i%16)
		g.Go(func() error {
			err := store.Add(ctx, person(id, "N", "", "S", "Male", "US"))
			if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
				return err
			}
			_, err = store.GetAll(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent adds: %v", err)
	}
	ids := snapshotIDs(t, store)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s in snapshot", id)
		}
		seen[id] = true
	}
	if len(ids) != 16 {
		t.Fatalf("expected 16 entities, got %d", len(ids))
	}
}

func TestStoreBackoffDoesNotBlockOtherCallers(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend(0)
	release := make(chan struct{})
	entered := make(chan struct{})
	store := NewStore(backend, WithWaitFunc(func(ctx context.Context, _ time.Duration) error {
		close(entered)
		<-release
		return nil
	}))
	mustAdd(t, store, person("1", "John", "", "Doe", "Male", "US"))

	backend.mu.Lock()
	backend.failures = 1
	backend.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- store.Update(ctx, person("1", "Johnny", "", "Doe", "Male", "US")) }()
	<-entered

	// The updater is parked in its backoff wait; reads and writes still go through.
	if _, err := store.GetByID(ctx, "1"); err != nil {
		t.Fatalf("read during backoff: %v", err)
	}
	mustAdd(t, store, person("2", "Jane", "", "Smith", "Female", "US"))

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("update after backoff: %v", err)
	}
	got, _ := store.GetByID(ctx, "1")
	if got.Names[0].FirstName != "Johnny" {
		t.Fatalf("update not applied after retry: %+v", got)
	}
}
