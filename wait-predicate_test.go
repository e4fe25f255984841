package navigator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWaitFor(t *testing.T) {
	tests := []struct {
		in   string
		want WaitPredicate
	}{
		{in: "js:() => document.querySelectorAll('h1').length === 0", want: JS("() => document.querySelectorAll('h1').length === 0")},
		{in: "css:#content", want: CSS("#content")},
		{in: ".main h1", want: CSS(".main h1")},
		{in: "  js:  window.ready ", want: JS("window.ready")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWaitFor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "js:", "css:  "} {
		_, err := ParseWaitFor(bad)
		assert.Error(t, err, bad)
	}
}

func TestSelectorGone(t *testing.T) {
	predicate := SelectorGone(`input[name="cf-turnstile-response"]`)

	assert.Equal(t, PredicateJS, predicate.Kind)
	assert.Equal(t, `() => document.querySelectorAll("input[name=\"cf-turnstile-response\"]").length === 0`, predicate.Expression)
	assert.Equal(t, "js:"+predicate.Expression, predicate.String())
}

func TestScriptWrapping(t *testing.T) {
	assert.True(t, isFunction("() => 1"))
	assert.True(t, isFunction("async () => { await x }"))
	assert.True(t, isFunction("function () { return 1 }"))
	assert.True(t, isFunction("el => el.value"))
	assert.False(t, isFunction("document.title"))
	assert.False(t, isFunction("const a = () => 1; a()"))

	assert.Equal(t, "() => 1", asFunction("() => 1"))
	assert.Equal(t, "() => {\nwindow.x = 1;\n}", asFunction("window.x = 1;"))
	assert.Equal(t, "() => (window.ready)", asPredicateFunction("window.ready"))
	assert.Equal(t, "(() => 1)()", asExpression("() => 1"))
}
