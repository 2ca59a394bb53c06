package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoContainsVersion(t *testing.T) {
	assert.Contains(t, Info(), Version)
	assert.Contains(t, Info(), "mindly")
}

func TestShortTruncatesLongCommits(t *testing.T) {
	assert.Equal(t, "abc1234", short("abc1234def5678"))
	assert.Equal(t, "abc", short("abc"))
}
