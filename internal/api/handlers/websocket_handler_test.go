package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/starteams/coaching-backend/internal/coach"
)

type fakeChatEngine struct {
	resp  *coach.ChatResponse
	err   error
	calls int
}

func (f *fakeChatEngine) Chat(_ context.Context, _ coach.ChatRequest) (*coach.ChatResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeSocket struct {
	frames   []map[string]interface{}
	failFrom int // fail writes at and after this index; -1 never fails
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	if f.failFrom >= 0 && len(f.frames) >= f.failFrom {
		return errors.New("connection reset")
	}
	f.frames = append(f.frames, v.(map[string]interface{}))
	return nil
}

func TestStreamTurnEmitsChunksAndCompletion(t *testing.T) {
	engine := &fakeChatEngine{resp: &coach.ChatResponse{
		ConversationID: "conv1",
		Response:       "lean into planning",
		Persona:        "coach",
		Source:         "llm",
		Confidence:     0.85,
	}}
	handler := NewWebSocketHandler(engine)
	sock := &fakeSocket{failFrom: -1}

	err := handler.streamTurn(sock, coach.ChatRequest{Message: "hi", Persona: coach.PersonaCoach})
	if err != nil {
		t.Fatalf("streamTurn: %v", err)
	}

	if sock.frames[0]["type"] != "status" {
		t.Errorf("first frame = %v, want status", sock.frames[0])
	}

	chunks := 0
	for _, frame := range sock.frames {
		if frame["type"] == "chunk" {
			chunks++
		}
	}
	if chunks != 3 {
		t.Errorf("chunk frames = %d, want 3", chunks)
	}

	last := sock.frames[len(sock.frames)-1]
	if last["type"] != "complete" || last["conversation_id"] != "conv1" {
		t.Errorf("final frame = %v, want completion for conv1", last)
	}
}

// A dead connection must surface from the very first write instead of
// burning an LLM turn into a socket nobody reads.
func TestStreamTurnStatusWriteFailureAborts(t *testing.T) {
	engine := &fakeChatEngine{resp: &coach.ChatResponse{Response: "answer"}}
	handler := NewWebSocketHandler(engine)
	sock := &fakeSocket{failFrom: 0}

	err := handler.streamTurn(sock, coach.ChatRequest{Message: "hi", Persona: coach.PersonaCoach})
	if err == nil {
		t.Fatal("expected write error to propagate")
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times after a failed status write, want 0", engine.calls)
	}
}

func TestStreamTurnGateDenialSendsError(t *testing.T) {
	engine := &fakeChatEngine{err: coach.ErrUsageDenied}
	handler := NewWebSocketHandler(engine)
	sock := &fakeSocket{failFrom: -1}

	err := handler.streamTurn(sock, coach.ChatRequest{Message: "hi", Persona: coach.PersonaCoach})
	if err != nil {
		t.Fatalf("gate denial must not error the stream: %v", err)
	}

	last := sock.frames[len(sock.frames)-1]
	if last["type"] != "error" {
		t.Errorf("final frame = %v, want error frame", last)
	}
}
