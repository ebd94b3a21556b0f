package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCandidate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "object surrounded by prose",
			text:   `I think this works: {"module":"m","payload":"p","options":{},"vector":"system"} thanks`,
			want:   `{"module":"m","payload":"p","options":{},"vector":"system"}`,
			wantOK: true,
		},
		{
			name:   "nested objects and arrays",
			text:   `plan: {"a":{"b":[1,{"c":2}]},"d":[]} trailing {"x":1}`,
			want:   `{"a":{"b":[1,{"c":2}]},"d":[]}`,
			wantOK: true,
		},
		{
			name:   "braces inside strings",
			text:   `{"rationale":"use } and { freely","vector":"web"} after`,
			want:   `{"rationale":"use } and { freely","vector":"web"}`,
			wantOK: true,
		},
		{
			name:   "escaped quote inside string",
			text:   `x {"r":"he said \"}\" loudly","v":1} y`,
			want:   `{"r":"he said \"}\" loudly","v":1}`,
			wantOK: true,
		},
		{
			name:   "escaped backslash before closing quote",
			text:   `{"path":"C:\\","n":{"k":"}"}}`,
			want:   `{"path":"C:\\","n":{"k":"}"}}`,
			wantOK: true,
		},
		{
			name:   "first object wins",
			text:   `{"first":true} {"second":true}`,
			want:   `{"first":true}`,
			wantOK: true,
		},
		{
			name:   "unicode around object",
			text:   `résumé → {"k":"värde"} ✓`,
			want:   `{"k":"värde"}`,
			wantOK: true,
		},
		{name: "no object", text: "nothing to see here", wantOK: false},
		{name: "empty", text: "", wantOK: false},
		{name: "unterminated", text: `{"module":"m", "payload": {"x": 1}`, wantOK: false},
		{name: "unterminated string", text: `{"module":"m}`, wantOK: false},
		{name: "closing brace first", text: `} {"a":1}`, want: `{"a":1}`, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCandidate(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
