package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSub(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, Sub([]string{"a", "b", "c"}, []string{"b", "d"}))
	assert.Empty(t, Sub(nil, []string{"a"}))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, SortedKeys(map[string]string{"C": "", "A": "", "B": ""}))
}
