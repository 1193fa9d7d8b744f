package caller

import (
	"os"
	"testing"
)

func TestCallerdumpWritesStackToStdout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	saved := os.Stdout
	os.Stdout = w
	Callerdump(0)
	w.Close()
	os.Stdout = saved

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	if n == 0 {
		t.Fatal("expected Callerdump to write at least one frame")
	}
}
