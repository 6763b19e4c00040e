package toolfw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatorTool(t *testing.T) {
	def, exec := CalculatorTool()
	assert.Equal(t, "calculator", def.Name)
	assert.Equal(t, []string{"expr"}, def.RequiredParameters())

	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"-5 + 3", -2},
		{"-(2+3)", -5},
		{"1.5*2", 3},
		{"((1+2)*(3+4))", 21},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			out, err := exec(context.Background(), map[string]any{"expr": tt.expr})
			require.NoError(t, err)
			payload, ok := out.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.want, payload["value"])
		})
	}
}

func TestCalculatorTool_Errors(t *testing.T) {
	_, exec := CalculatorTool()

	for _, expr := range []string{"", "2+", "1/0", "(2+3", "2 & 3", "abc"} {
		t.Run("invalid "+expr, func(t *testing.T) {
			_, err := exec(context.Background(), map[string]any{"expr": expr})
			assert.Error(t, err)
		})
	}
}

func TestClockTool(t *testing.T) {
	def, exec := ClockTool()
	assert.Equal(t, "clock", def.Name)

	out, err := exec(context.Background(), nil)
	require.NoError(t, err)
	payload, ok := out.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, payload["rfc3339"])
	assert.NotZero(t, payload["unix"])
}
