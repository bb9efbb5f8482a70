package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesMetadata(t *testing.T) {
	t.Parallel()

	err := Newf("chunk %d missing", 42).
		Component("datastore").
		Category(CategoryDatabase).
		Context("operation", "insert_frame").
		Build()

	assert.Equal(t, "chunk 42 missing", err.Error())
	assert.Equal(t, "datastore", err.GetComponent())
	assert.Equal(t, string(CategoryDatabase), err.GetCategory())
	assert.Equal(t, "insert_frame", err.GetContext()["operation"])
	assert.False(t, err.GetTimestamp().IsZero())
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	conflict := Newf("duplicate ocr row").Category(CategoryConflict).Build()
	other := Newf("another conflict").Category(CategoryConflict).Build()

	assert.True(t, Is(conflict, other))
	assert.True(t, HasCategory(conflict, CategoryConflict))
	assert.False(t, HasCategory(conflict, CategoryNotFound))
}

func TestUnwrapPreservesChain(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("disk full")
	wrapped := New(fmt.Errorf("save failed: %w", base)).Category(CategorySystem).Build()

	assert.True(t, Is(wrapped, base))

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Equal(t, CategorySystem, ee.Category)
}

func TestContextCopyIsIsolated(t *testing.T) {
	t.Parallel()

	err := Newf("boom").Context("k", "v").Build()
	ctx := err.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", err.GetContext()["k"])
}

func TestBuildWithoutCategoryDefaultsToGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("plain").Build()
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
}
