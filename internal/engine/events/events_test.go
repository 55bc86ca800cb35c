package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMessageTypes_AreDistinct(t *testing.T) {
	messages := []interface{}{
		DownloadQueuedMsg{DownloadID: "queued"},
		DownloadStartedMsg{DownloadID: "started"},
		DownloadCompleteMsg{DownloadID: "complete"},
		DownloadErrorMsg{DownloadID: "error"},
		DownloadCancelledMsg{DownloadID: "cancelled"},
		DownloadRemovedMsg{DownloadID: "removed"},
		LibrarySyncedMsg{LibraryID: "lib"},
	}

	typeNames := make(map[string]bool)
	for _, msg := range messages {
		typeName := fmt.Sprintf("%T", msg)
		if typeNames[typeName] {
			t.Errorf("Duplicate type: %s", typeName)
		}
		typeNames[typeName] = true
	}

	if len(typeNames) != len(messages) {
		t.Errorf("Expected %d distinct types, got %d", len(messages), len(typeNames))
	}
}

func TestDownloadErrorMsg_JSONRoundTrip(t *testing.T) {
	sent := DownloadErrorMsg{
		DownloadID: "err-1",
		MediaKey:   "4711",
		Name:       "Heat",
		Err:        errors.New("no reachable endpoint"),
	}

	data, err := json.Marshal(sent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var received DownloadErrorMsg
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.DownloadID != sent.DownloadID || received.MediaKey != sent.MediaKey || received.Name != sent.Name {
		t.Errorf("identity fields not preserved: %+v", received)
	}
	if received.Err == nil || received.Err.Error() != "no reachable endpoint" {
		t.Errorf("error text not preserved: %v", received.Err)
	}
}

func TestDownloadErrorMsg_UnmarshalVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"missing", `{"DownloadID":"a"}`, ""},
		{"empty string", `{"DownloadID":"a","Err":""}`, ""},
		{"null", `{"DownloadID":"a","Err":null}`, ""},
		{"object", `{"DownloadID":"a","Err":{}}`, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg DownloadErrorMsg
			if err := json.Unmarshal([]byte(tt.payload), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tt.wantErr == "" {
				if msg.Err != nil {
					t.Errorf("expected nil error, got %v", msg.Err)
				}
				return
			}
			if msg.Err == nil || msg.Err.Error() != tt.wantErr {
				t.Errorf("Err = %v, want %q", msg.Err, tt.wantErr)
			}
		})
	}
}

func TestPublish_NeverBlocks(t *testing.T) {
	ch := make(chan any, 1)

	if !Publish(ch, DownloadQueuedMsg{DownloadID: "1"}) {
		t.Fatal("first publish should be delivered")
	}

	done := make(chan bool)
	go func() { done <- Publish(ch, DownloadQueuedMsg{DownloadID: "2"}) }()

	select {
	case delivered := <-done:
		if delivered {
			t.Error("publish on a full channel should report a drop")
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full channel")
	}

	if Publish(nil, DownloadQueuedMsg{}) {
		t.Error("publish on a nil channel should report a drop")
	}
}

func TestDownloadCompleteMsg_Equality(t *testing.T) {
	msg1 := DownloadCompleteMsg{DownloadID: "equal", Name: "Heat", Elapsed: 5 * time.Second, Total: 1000}
	msg2 := DownloadCompleteMsg{DownloadID: "equal", Name: "Heat", Elapsed: 5 * time.Second, Total: 1000}

	if msg1 != msg2 {
		t.Error("Identical DownloadCompleteMsg should be equal")
	}
}

func TestStreamNames_RoundTrip(t *testing.T) {
	messages := []any{
		DownloadQueuedMsg{DownloadID: "q", MediaKey: "1"},
		DownloadStartedMsg{DownloadID: "s", Total: 10, DestPath: "/tmp/x.mkv"},
		DownloadCompleteMsg{DownloadID: "c", Elapsed: time.Second, Total: 10},
		DownloadCancelledMsg{DownloadID: "x", Downloaded: 4},
		DownloadRemovedMsg{DownloadID: "r"},
		LibrarySyncedMsg{LibraryID: "s1:1", Items: 137, Elapsed: 2 * time.Second},
	}

	seen := make(map[string]bool)
	for _, msg := range messages {
		name, ok := Name(msg)
		if !ok {
			t.Fatalf("no stream name for %T", msg)
		}
		if seen[name] {
			t.Errorf("duplicate stream name %q", name)
		}
		seen[name] = true

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", msg, err)
		}
		got, err := Decode(name, data)
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if got != msg {
			t.Errorf("decode %s = %+v, want %+v", name, got, msg)
		}
	}

	if _, ok := Name("progress"); ok {
		t.Error("plain strings have no stream name")
	}
	if _, err := Decode("paused", []byte(`{}`)); err == nil {
		t.Error("unknown event names should fail")
	}
}
