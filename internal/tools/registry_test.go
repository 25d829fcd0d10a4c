package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExec(_ context.Context, _ map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	spec := Spec{Name: "ping", Description: "replies pong"}
	require.NoError(t, reg.Register(spec, noopExec))

	exec, got, err := reg.Resolve("ping")
	require.NoError(t, err)
	assert.NotNil(t, exec)
	assert.Equal(t, spec, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Spec{Name: "ping"}, noopExec))

	err := reg.Register(Spec{Name: "ping"}, noopExec)
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ping", dup.Name)
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(Spec{}, noopExec))
	assert.Error(t, reg.Register(Spec{Name: "ping"}, nil))
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Resolve("ghost")
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
}

func TestRegistrySpecsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(Spec{Name: name}, noopExec))
	}

	specs := reg.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "c", specs[0].Name)
	assert.Equal(t, "a", specs[1].Name)
	assert.Equal(t, "b", specs[2].Name)
}
