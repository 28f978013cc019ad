package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndDropsDuplicates(t *testing.T) {
	r := NewRegistry(namedJob("session-idle-close"), nil, namedJob("propagation-maintenance"), namedJob("session-idle-close"))
	assert.Equal(t, []string{"session-idle-close", "propagation-maintenance"}, r.Names())

	jobs := r.Jobs()
	jobs[0] = nil
	assert.NotNil(t, r.Jobs()[0], "Jobs must return a copy")
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry(namedJob("a"), namedJob("b"), namedJob("c"))

	all, err := r.Select("  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all.Names())

	picked, err := r.Select("c, a,,c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, picked.Names())

	_, err = r.Select("a,zzz")
	assert.ErrorContains(t, err, `unknown job "zzz"`)
}
