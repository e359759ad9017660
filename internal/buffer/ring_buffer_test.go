package buffer

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewRingBuffer(t *testing.T) {
	// Test with valid capacity
	rb := NewRingBuffer[string](16)
	if rb.Cap() != 16 {
		t.Errorf("expected capacity 16, got %d", rb.Cap())
	}
	if rb.Len() != 0 {
		t.Errorf("expected length 0, got %d", rb.Len())
	}

	// Test with zero capacity (should default to 1)
	rb = NewRingBuffer[string](0)
	if rb.Cap() != 1 {
		t.Errorf("expected capacity 1 for zero input, got %d", rb.Cap())
	}

	// Test with negative capacity (should default to 1)
	rb = NewRingBuffer[string](-5)
	if rb.Cap() != 1 {
		t.Errorf("expected capacity 1 for negative input, got %d", rb.Cap())
	}
}

func TestRingBuffer_PushPop(t *testing.T) {
	rb := NewRingBuffer[string](3)

	for _, v := range []string{"a", "b", "c"} {
		if dropped := rb.Push(v); dropped {
			t.Errorf("unexpected drop while pushing %q", v)
		}
	}
	if rb.Len() != 3 {
		t.Errorf("expected length 3, got %d", rb.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := rb.Pop()
		if !ok {
			t.Fatalf("expected %q, queue was empty", want)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if _, ok := rb.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestRingBuffer_PushOverflow(t *testing.T) {
	rb := NewRingBuffer[int](4)

	for i := 0; i < 4; i++ {
		rb.Push(i)
	}

	// Queue is full, oldest should be discarded
	if dropped := rb.Push(4); !dropped {
		t.Error("expected push into full queue to report a drop")
	}
	rb.Push(5)

	got := rb.ReadAll()
	want := []int{2, 3, 4, 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if rb.Len() != 4 {
		t.Errorf("expected length 4, got %d", rb.Len())
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer[int](3)

	rb.Push(1)
	rb.Push(2)
	rb.Pop()
	rb.Push(3)
	rb.Push(4)

	got := rb.ReadAll()
	want := []int{2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRingBuffer_ReadAll(t *testing.T) {
	rb := NewRingBuffer[string](10)

	// ReadAll on empty buffer
	if data := rb.ReadAll(); data != nil {
		t.Errorf("expected nil for empty buffer, got %v", data)
	}

	rb.Push("test")
	data := rb.ReadAll()
	if len(data) != 1 || data[0] != "test" {
		t.Errorf("expected [test], got %v", data)
	}

	// Modifying the returned slice must not affect the queue
	data[0] = "X"
	if again := rb.ReadAll(); again[0] != "test" {
		t.Errorf("ReadAll should return a copy, got %v", again)
	}

	// ReadAll does not consume
	if rb.Len() != 1 {
		t.Errorf("expected length 1 after ReadAll, got %d", rb.Len())
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer[string](10)
	rb.Push("hello")

	rb.Clear()

	if rb.Len() != 0 {
		t.Errorf("expected length 0 after clear, got %d", rb.Len())
	}
	if data := rb.ReadAll(); data != nil {
		t.Errorf("expected nil after clear, got %v", data)
	}

	// Should be able to push again after clear
	rb.Push("world")
	if v, _ := rb.Pop(); v != "world" {
		t.Errorf("expected 'world', got %q", v)
	}
}

func TestRingBufferKeepsNewestProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("queue holds exactly the newest min(n, cap) elements in order", prop.ForAll(
		func(capacity int, values []int) bool {
			rb := NewRingBuffer[int](capacity)

			drops := 0
			for _, v := range values {
				if rb.Push(v) {
					drops++
				}
			}

			expected := values
			if len(values) > capacity {
				expected = values[len(values)-capacity:]
			}
			if drops != len(values)-len(expected) {
				return false
			}

			got := rb.ReadAll()
			if len(got) != len(expected) {
				return false
			}
			for i := range got {
				if got[i] != expected[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 32),
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
