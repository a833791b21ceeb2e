package client

import (
	"strings"
	"testing"
)

func TestReadSSE(t *testing.T) {
	stream := ":keepalive\n\n" +
		"id:1\nevent:contact.created\ndata:{\"id\":1}\n\n" +
		"id:2\nevent:contact.updated\ndata:{\"id\":2}\n\n"

	var events []string
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		events = append(events, event+" "+data)
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 frames, got %d", len(events))
	}
	if events[0] != `contact.created {"id":1}` {
		t.Fatalf("frame 0: %s", events[0])
	}
}

func TestReadSSEStopsOnTailDone(t *testing.T) {
	stream := "data:{\"id\":1}\n\ndata:{\"id\":2}\n\n"
	n := 0
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		n++
		return errTailDone
	})
	if err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 frame, got %d", n)
	}
}
