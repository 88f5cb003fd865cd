package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContractStack(t *testing.T) {
	tests := []struct {
		name    string
		stack   string
		want    []string
		wantErr bool
	}{
		{
			name:  "empty stack yields the base contract",
			stack: "",
			want:  []string{ContractFactoryTruth},
		},
		{
			name:  "base contract is not duplicated",
			stack: "factory_truth_v1",
			want:  []string{ContractFactoryTruth},
		},
		{
			name:  "product contract layers after the base",
			stack: "eldercare_safety_v1",
			want:  []string{ContractFactoryTruth, ContractEldercareSafety},
		},
		{
			name:  "whitespace and empty segments tolerated",
			stack: " , eldercare_safety_v1 , ",
			want:  []string{ContractFactoryTruth, ContractEldercareSafety},
		},
		{
			name:    "unknown contract rejected",
			stack:   "totally_made_up_v9",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContractStack(tt.stack)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContractSystemPrompts_Order(t *testing.T) {
	prompts := ContractSystemPrompts([]string{ContractFactoryTruth, ContractEldercareSafety})
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "Truth-first")
	assert.Contains(t, prompts[1], "elder-care safety")
}

func TestChairmanContractSystemPrompts_IncludesAddendum(t *testing.T) {
	prompts := ChairmanContractSystemPrompts([]string{ContractFactoryTruth})
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "traceable to council inputs")
}
