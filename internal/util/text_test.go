package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"OPI Gel Color - Red Hot":               "opi gel color - red hot",
		"  Acetone   [16 oz]  Remover ":         "acetone remover",
		"*NEW* Kolinsky Brush #8 [sale] *promo*": "kolinsky brush #8",
		"[[nested] tag] Top Coat":               "tag] top coat",
		"":                                      "",
		"*unterminated star":                    "*unterminated star",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"OPI Gel Color - Red Hot",
		"[a]*b*[c] D\tE",
		"**[x]** Base Coat",
		"*[x]* [*y*] Top",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestNormalizeRemovalOrderDoesNotMatter(t *testing.T) {
	assert.Equal(t, Normalize("[a] x *b*"), Normalize("*b* x [a]"))
	assert.Equal(t, "x", Normalize("[a] x *b*"))
}

func TestSignificantWords(t *testing.T) {
	stop := map[string]struct{}{"polish": {}}
	got := SignificantWords(Normalize("Red Polish (Malaga) malaga wine"), 4, stop)
	assert.Equal(t, []string{"malaga"}, got)
}

func TestPrefixCountsRunes(t *testing.T) {
	assert.Equal(t, "café", Prefix("café crème", 4))
	assert.Equal(t, "ab", Prefix("ab", 15))
	assert.Equal(t, "", Prefix("ab", 0))
}
