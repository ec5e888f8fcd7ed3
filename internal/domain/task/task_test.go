package task

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr error
		anyErr  bool
	}{
		{name: "valid", task: Task{Type: "chat"}},
		{name: "missing type", task: Task{}, wantErr: ErrTypeRequired},
		{name: "blank type", task: Task{Type: "   "}, wantErr: ErrTypeRequired},
		{name: "negative timeout", task: Task{Type: "chat", Timeout: -time.Second}, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}
