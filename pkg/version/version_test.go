package version

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var semverRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

func TestVersion(t *testing.T) {
	assert.Regexp(t, semverRegex, Version)
}

func TestInfo(t *testing.T) {
	info := Info()
	assert.True(t, strings.HasPrefix(info, "kflogs v"+Version+"\n"))
	assert.Contains(t, info, "Git Commit: "+GitCommit)
	assert.Contains(t, info, "OS/Arch:")
}
