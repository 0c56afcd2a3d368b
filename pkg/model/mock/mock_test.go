package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/aldermoor/vocalis/pkg/model"
)

func TestState_Run_ReturnsConfiguredSegments(t *testing.T) {
	m := New([]model.Segment{{Text: "hello", Language: "en"}})
	st, err := m.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	segs, err := st.Run(context.Background(), model.Params{}, make([]float32, 1600))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "hello" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestState_Run_PropagatesModelError(t *testing.T) {
	wantErr := errors.New("boom")
	m := New(nil)
	m.Err = wantErr
	st, _ := m.NewState()

	_, err := st.Run(context.Background(), model.Params{}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestState_Run_AfterClose_ReturnsErrClosed(t *testing.T) {
	m := New(nil)
	st, _ := m.NewState()
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := st.Run(context.Background(), model.Params{}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestModel_NewState_AfterClose_ReturnsErrClosed(t *testing.T) {
	m := New(nil)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.NewState(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
