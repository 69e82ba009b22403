package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			"UUID replacement",
			"/api/links/550e8400-e29b-41d4-a716-446655440000",
			"/api/links/:id",
		},
		{
			"ObjectID replacement",
			"/api/links/507f1f77bcf86cd799439011",
			"/api/links/:id",
		},
		{
			"numeric ID replacement",
			"/api/links/12345",
			"/api/links/:id",
		},
		{
			"no change for short code path",
			"/abcXYZ",
			"/abcXYZ",
		},
		{
			"analytics with ObjectID",
			"/api/analytics/507f1f77bcf86cd799439011",
			"/api/analytics/:id",
		},
		{
			"root path unchanged",
			"/",
			"/",
		},
		{
			"health endpoint unchanged",
			"/health",
			"/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.path)
			if got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
