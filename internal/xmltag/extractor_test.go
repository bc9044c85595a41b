package xmltag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindAll(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		tag      string
		expected []string
	}{
		{
			name:     "repeated tags",
			doc:      `<a>x</a><a>y</a>`,
			tag:      "a",
			expected: []string{"x", "y"},
		},
		{
			name:     "escaped fallback",
			doc:      `&lt;a&gt;x&lt;/a&gt;`,
			tag:      "a",
			expected: []string{"x"},
		},
		{
			name:     "literal wins over escaped",
			doc:      `<a>lit</a>&lt;a&gt;esc&lt;/a&gt;`,
			tag:      "a",
			expected: []string{"lit"},
		},
		{
			name:     "missing tag",
			doc:      `<b>x</b>`,
			tag:      "missing",
			expected: []string{},
		},
		{
			name:     "empty document",
			doc:      ``,
			tag:      "a",
			expected: []string{},
		},
		{
			name:     "nested content kept verbatim",
			doc:      `<Obs><Code>10016</Code><Msg>dup</Msg></Obs>`,
			tag:      "Obs",
			expected: []string{"<Code>10016</Code><Msg>dup</Msg>"},
		},
		{
			name:     "unterminated tag takes the rest",
			doc:      `<a>tail`,
			tag:      "a",
			expected: []string{"tail"},
		},
		{
			name:     "empty element",
			doc:      `<a></a>`,
			tag:      "a",
			expected: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindAll(tt.doc, tt.tag))
		})
	}
}

func TestFindFirst(t *testing.T) {
	v, ok := FindFirst(`<a>x</a><a>y</a>`, "a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = FindFirst(`&lt;a&gt;x&lt;/a&gt;`, "a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = FindFirst(`<a>x</a>`, "missing")
	assert.False(t, ok)
}

func TestFindFirstOr(t *testing.T) {
	assert.Equal(t, "x", FindFirstOr(`<a>x</a>`, "a", "none"))
	assert.Equal(t, "none", FindFirstOr(`<a>x</a>`, "b", "none"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(`<soapenv:Fault><faultcode>x</faultcode>`, "faultcode"))
	assert.True(t, Contains(`<faultcode xmlns="">x</faultcode>`, "faultcode"))
	assert.True(t, Contains(`&lt;faultcode&gt;x&lt;/faultcode&gt;`, "faultcode"))
	assert.False(t, Contains(`<token>x</token>`, "faultcode"))
}

// The extractor is lexical: a tag literal inside a value desynchronizes it.
func TestFindAll_LexicalLimitation(t *testing.T) {
	doc := `<v>a</v><note>see <v> here</note><v>b</v>`
	assert.Equal(t, []string{"a", " here</note>", "b"}, FindAll(doc, "v"))
}
