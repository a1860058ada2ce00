package scenario_test

import (
	"errors"
	"testing"

	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/types"
)

func openStore(t *testing.T) *scenario.Store {
	t.Helper()
	s, err := scenario.OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetListDelete(t *testing.T) {
	s := openStore(t)

	sc := mustParse(t, twoJobs)
	if err := s.Put(sc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	other := mustParse(t, "name: alpha\nprocesses: [{execution: 2}]\n")
	if err := s.Put(other); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("two-jobs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Params["quantum"] != types.Int(5) || len(got.Processes) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "two-jobs" {
		t.Errorf("List names out of order: %v", list)
	}

	if err := s.Delete("alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("alpha"); !errors.Is(err, scenario.ErrNotFound) {
		t.Errorf("Get after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Delete("alpha"); !errors.Is(err, scenario.ErrNotFound) {
		t.Errorf("second Delete: want ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsInvalidName(t *testing.T) {
	s := openStore(t)
	for _, name := range []string{"", "Upper", "-lead", "has space"} {
		sc := &scenario.Scenario{Name: name}
		if err := s.Put(sc); !errors.Is(err, scenario.ErrInvalidName) {
			t.Errorf("Put(%q): want ErrInvalidName, got %v", name, err)
		}
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := scenario.OpenStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(mustParse(t, twoJobs)); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = scenario.OpenStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get("two-jobs"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
