package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"喜欢钢琴", []string{"喜", "欢", "钢", "琴"}},
		{"的奶茶", []string{"奶", "茶"}},
		{"Jay周杰伦 2000", []string{"jay", "周", "杰", "伦", "2000"}},
		{"I don't like THE rain", []string{"i", "don't", "like", "rain"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.in))
		})
	}
}

func TestCounts(t *testing.T) {
	assert.Equal(t, map[string]int{"tea": 2, "milk": 1}, Counts("Tea, milk tea"))
	assert.Empty(t, Counts("the and of"))
}
