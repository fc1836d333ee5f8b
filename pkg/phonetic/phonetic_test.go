package phonetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoundex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Smith", "S530"},
		{"Smyth", "S530"},
		{"A", "A000"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Soundex(tt.input))
		})
	}
}

func TestSoundexIgnoresNonLetters(t *testing.T) {
	assert.Equal(t, Soundex("OBrien"), Soundex("O'Brien"))
}

func TestMetaphone(t *testing.T) {
	// Similar-sounding names encode identically
	pairs := [][2]string{
		{"Smith", "Smyth"},
		{"John", "Jon"},
		{"Philip", "Filip"},
	}
	for _, p := range pairs {
		assert.Equal(t, Metaphone(p[0]), Metaphone(p[1]), "%q vs %q", p[0], p[1])
	}

	assert.NotEqual(t, Metaphone("Smith"), Metaphone("Jones"))
	assert.Equal(t, "", Metaphone(""))
	assert.Equal(t, "", Metaphone("123"))
}

func TestNYSIIS(t *testing.T) {
	pairs := [][2]string{
		{"John", "Jon"},
		{"Knight", "Night"},
	}
	for _, p := range pairs {
		assert.Equal(t, NYSIIS(p[0]), NYSIIS(p[1]), "%q vs %q", p[0], p[1])
	}

	assert.Equal(t, "JAN", NYSIIS("John"))
	assert.NotEqual(t, NYSIIS("Smith"), NYSIIS("Doe"))
	assert.Equal(t, "", NYSIIS(""))
	assert.Equal(t, "", NYSIIS("!!!"))
}

func TestEncodersNeverErrorOnUnicode(t *testing.T) {
	inputs := []string{"数据库", "José", "Ångström", "   "}
	for _, in := range inputs {
		_ = Soundex(in)
		_ = Metaphone(in)
		_ = NYSIIS(in)
	}
}
