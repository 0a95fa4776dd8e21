package shellformat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		wantErr  bool
	}{
		{
			name:     "keeps shebang",
			input:    "#!/usr/bin/env bash\nset -euo pipefail\necho hi",
			contains: []string{"#!/usr/bin/env bash", "set -euo pipefail", "echo hi"},
		},
		{
			name:     "normalizes redirect spacing",
			input:    "echo hi >out.txt",
			contains: []string{"echo hi > out.txt"},
		},
		{
			name:     "indents if bodies",
			input:    "if [ -d src ]; then\necho ok\nfi",
			contains: []string{"\n  echo ok\n"},
		},
		{
			name:    "unterminated quote",
			input:   "echo 'oops",
			wantErr: true,
		},
		{
			name:    "unclosed if",
			input:   "if true; then echo x",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, c := range tt.contains {
				assert.True(t, strings.Contains(got, c), "expected %q in:\n%s", c, got)
			}
		})
	}
}

func TestValidate_POSIXRejectsBashisms(t *testing.T) {
	script := "if [[ -n $X ]]; then echo y; fi"
	assert.NoError(t, Validate(script))
	assert.Error(t, Validate(script, WithVariant(POSIX)))
}

func TestQuote(t *testing.T) {
	q, err := Quote("https://example.com/repo.git; rm -rf /")
	require.NoError(t, err)
	assert.NoError(t, Validate("git clone "+q))
	assert.True(t, strings.HasPrefix(q, "'"))
}
