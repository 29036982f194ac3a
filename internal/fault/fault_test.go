package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	cause := errors.New("disk full")
	err := New(InsufficientStorage, "install", "1.20.0", cause)

	assert.True(t, errors.Is(err, InsufficientStorage))
	assert.False(t, errors.Is(err, DownloadFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "install: InsufficientStorage (1.20.0): disk full", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(RegistryIOError, "registry.save", "", errors.New("read-only"))
	wrapped := fmt.Errorf("persist: %w", inner)

	assert.Equal(t, RegistryIOError, KindOf(wrapped))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Cancelled, KindOf(fmt.Errorf("x: %w", Cancelled)))
}

func TestEveryKindHasStatus(t *testing.T) {
	for k := Unknown; k <= NotInstalled; k++ {
		require.NotEmpty(t, k.Status(), k.String())
		require.NotContains(t, k.String(), "Kind(")
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
