package kb

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestValidatePlan(t *testing.T) {
	incoming := uuid.New()
	other := uuid.New()

	tests := []struct {
		name    string
		raw     rawPlan
		wantLen int
		wantErr bool
	}{
		{
			name:    "empty plan",
			raw:     rawPlan{},
			wantLen: 0,
		},
		{
			name: "insert incoming",
			raw: rawPlan{Actions: []rawAction{
				{Action: "INSERT", MemoUUID: incoming.String(), Reason: "new knowledge"},
			}},
			wantLen: 1,
		},
		{
			name: "insert plus delete",
			raw: rawPlan{Actions: []rawAction{
				{Action: "INSERT", MemoUUID: incoming.String(), Reason: "supersedes"},
				{Action: "DELETE", MemoUUID: other.String(), Reason: "outdated"},
			}},
			wantLen: 2,
		},
		{
			name: "update with sentinel",
			raw: rawPlan{Actions: []rawAction{
				{Action: "UPDATE", MemoUUID: other.String(), Reason: "retag", UpdatedContent: ContentUnchanged},
			}},
			wantLen: 1,
		},
		{
			name: "unknown action",
			raw: rawPlan{Actions: []rawAction{
				{Action: "MERGE", MemoUUID: other.String()},
			}},
			wantErr: true,
		},
		{
			name: "bad uuid",
			raw: rawPlan{Actions: []rawAction{
				{Action: "DELETE", MemoUUID: "not-a-uuid"},
			}},
			wantErr: true,
		},
		{
			name: "insert of foreign memo",
			raw: rawPlan{Actions: []rawAction{
				{Action: "INSERT", MemoUUID: other.String()},
			}},
			wantErr: true,
		},
		{
			name: "double insert",
			raw: rawPlan{Actions: []rawAction{
				{Action: "INSERT", MemoUUID: incoming.String()},
				{Action: "INSERT", MemoUUID: incoming.String()},
			}},
			wantErr: true,
		},
		{
			name: "delete of incoming memo",
			raw: rawPlan{Actions: []rawAction{
				{Action: "DELETE", MemoUUID: incoming.String()},
			}},
			wantErr: true,
		},
		{
			name: "update of incoming memo",
			raw: rawPlan{Actions: []rawAction{
				{Action: "UPDATE", MemoUUID: incoming.String(), UpdatedContent: "x"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := validatePlan(tt.raw, incoming)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPlan) {
					t.Fatalf("validatePlan() = %v, want ErrInvalidPlan", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validatePlan() = %v", err)
			}
			if len(actions) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(actions), tt.wantLen)
			}
		})
	}
}
