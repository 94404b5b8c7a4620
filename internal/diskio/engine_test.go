package diskio

import (
	"os"
	"sync"
	"testing"
	"time"
)

func TestWriteThenReadAsyncRoundTrip(t *testing.T) {
	f, err := os.CreateTemp("", "distfs-diskio-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	e := New(Options{Workers: 2})
	defer e.Stop()

	data := []byte("payload-bytes")
	var wg sync.WaitGroup
	wg.Add(1)
	e.WriteAsync(f, data, 0, func(req *Request, result int, userData interface{}) {
		if result < 0 {
			t.Errorf("write failed: %d", result)
		}
		wg.Done()
	}, nil)
	if !waitTimeout(&wg, 2*time.Second) {
		t.Fatal("write callback never fired")
	}

	buf := make([]byte, len(data))
	wg.Add(1)
	e.ReadAsync(f, buf, 0, func(req *Request, result int, userData interface{}) {
		if result != len(data) {
			t.Errorf("read result = %d, want %d", result, len(data))
		}
		wg.Done()
	}, nil)
	if !waitTimeout(&wg, 2*time.Second) {
		t.Fatal("read callback never fired")
	}
	if string(buf) != string(data) {
		t.Errorf("read back %q, want %q", buf, data)
	}
}

func TestStopCancelsSubsequentSubmissions(t *testing.T) {
	f, err := os.CreateTemp("", "distfs-diskio-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	e := New(Options{Workers: 1})
	e.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	e.WriteAsync(f, []byte("x"), 0, func(req *Request, result int, userData interface{}) {
		if result != cancelledResult {
			t.Errorf("result = %d, want cancelled code %d", result, cancelledResult)
		}
		wg.Done()
	}, nil)
	if !waitTimeout(&wg, 2*time.Second) {
		t.Fatal("cancelled callback never fired")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
