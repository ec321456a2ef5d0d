package graphql

import (
	"strings"
	"testing"
)

func TestValidateQueryDepth(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		maxDepth int
		wantErr  string
	}{
		{
			name:     "scalar root field",
			query:    `{ health }`,
			maxDepth: 1,
		},
		{
			name:     "within limit",
			query:    `{ node(id: "S") { neighbors { neighbors { neighbors { id } } } } }`,
			maxDepth: 4,
		},
		{
			name:     "exceeds limit",
			query:    `{ node(id: "S") { neighbors { neighbors { neighbors { neighbors { id } } } } } }`,
			maxDepth: 4,
			wantErr:  "query depth 5 exceeds maximum allowed depth 4",
		},
		{
			name:  "fragment spreads count at the spread depth",
			query: `
				fragment deep on Node { neighbors { neighbors { id } } }
				{ node(id: "S") { ...deep } }`,
			maxDepth: 2,
			wantErr:  "query depth 3 exceeds",
		},
		{
			name:     "inline fragments add no depth",
			query:    `{ node(id: "S") { ... on Node { neighbors { id } } } }`,
			maxDepth: 2,
		},
		{
			name:     "introspection is ignored",
			query:    `{ __schema { types { fields { type { name } } } } }`,
			maxDepth: 1,
		},
		{
			name:     "parse error",
			query:    `{ node(id: `,
			maxDepth: 4,
			wantErr:  "failed to parse query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryDepth(tt.query, tt.maxDepth)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateQueryDepth() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateQueryDepth() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSelfReferencingFragmentTerminates(t *testing.T) {
	query := `
		fragment loop on Node { neighbors { ...loop } }
		{ node(id: "S") { ...loop } }`
	if err := ValidateQueryDepth(query, 10); err != nil {
		t.Errorf("ValidateQueryDepth() error = %v", err)
	}
}
