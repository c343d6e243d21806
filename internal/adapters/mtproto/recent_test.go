package mtproto

import (
	"fmt"
	"testing"
)

func TestRecentSetDetectsDuplicates(t *testing.T) {
	s := newRecentSet(3)

	if !s.Add("1:1") {
		t.Fatalf("первый ключ должен считаться новым")
	}
	if s.Add("1:1") {
		t.Fatalf("повтор ключа должен быть отклонён")
	}
}

func TestRecentSetEvictsOldest(t *testing.T) {
	s := newRecentSet(3)

	for i := 0; i < 4; i++ {
		if !s.Add(fmt.Sprintf("1:%d", i)) {
			t.Fatalf("ключ 1:%d неожиданно отклонён", i)
		}
	}

	// Самый старый ключ вытеснен и считается новым снова.
	if !s.Add("1:0") {
		t.Fatalf("вытесненный ключ должен приниматься заново")
	}
	// Более поздние ключи всё ещё в окне.
	if s.Add("1:3") {
		t.Fatalf("ключ 1:3 ещё в окне и должен быть отклонён")
	}
}

func TestRecentSetAtCapacityKeepsWindowSize(t *testing.T) {
	s := newRecentSet(2)

	s.Add("a")
	s.Add("b")
	s.Add("c")
	s.Add("d")

	if len(s.seen) != 2 {
		t.Fatalf("размер множества = %d, ожидалось 2", len(s.seen))
	}
	if s.Add("c") || s.Add("d") {
		t.Fatalf("последние два ключа должны оставаться в окне")
	}
	if !s.Add("a") {
		t.Fatalf("давно вытесненный ключ должен приниматься заново")
	}
}
