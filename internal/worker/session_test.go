package worker

import "testing"

func TestIdentifyOneShot(t *testing.T) {
	s := New(func(string) error { return nil })

	if !s.Identify("A", RoleSelfPlay) {
		t.Fatal("expected first Identify to succeed")
	}
	if s.Identify("B", RoleOptimization) {
		t.Fatal("expected second Identify to fail")
	}
	if s.Name() != "A" || s.Role() != RoleSelfPlay {
		t.Fatalf("unexpected identity %q %q", s.Name(), s.Role())
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := New(func(string) error { return nil })

	if !s.Close() {
		t.Fatal("expected first Close to report wasOpen")
	}
	if s.Close() {
		t.Fatal("expected second Close to be a no-op")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
}

func TestWriteLinesOrder(t *testing.T) {
	var got []string
	s := New(func(line string) error {
		got = append(got, line)
		return nil
	})

	if err := s.WriteLines("load_model x", "reset_actors", "start"); err != nil {
		t.Fatalf("WriteLines error: %v", err)
	}
	want := []string{"load_model x", "reset_actors", "start"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	s := New(func(string) error { return nil })
	s.Close()
	if err := s.Write("anything"); err != ErrClosed {
		t.Fatalf("Write after close = %v, want ErrClosed", err)
	}
}
