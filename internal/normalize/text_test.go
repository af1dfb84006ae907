package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldTitle(t *testing.T) {
	assert.Equal(t, "creme brulee torch", FoldTitle("  Crème   Brûlée TORCH "))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"run", "shoe"}, Tokens("Running Shoes!"))
	assert.Equal(t, Tokens("cafe mugs"), Tokens("The Café Mugs"))
	assert.Empty(t, Tokens("the of and"))
}

func TestJaccard(t *testing.T) {
	a := TokenSet("red running shoes size 10")
	b := TokenSet("Red Running Shoe, Size 10")
	assert.InDelta(t, 1.0, Jaccard(a, b), 1e-9)

	c := TokenSet("blue running shoes")
	assert.InDelta(t, 2.0/6.0, Jaccard(a, c), 1e-9)

	assert.Zero(t, Jaccard(nil, nil))
}
