package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	errGone := New(KindNotFound, "thing_not_found", "thing not found")

	t.Run("direct", func(t *testing.T) {
		assert.Equal(t, KindNotFound, KindOf(errGone))
		assert.Equal(t, "thing_not_found", CodeOf(errGone))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("load thing: %w", errGone)
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.True(t, errors.Is(err, errGone))
	})

	t.Run("unclassified", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, KindInternal, KindOf(err))
		assert.Equal(t, "internal_error", CodeOf(err))
	})
}
