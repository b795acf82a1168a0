package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		dsn  string
		name string
		want string
	}{
		{"postgres://u:p@host:5432/postgres?sslmode=disable", "timetables", "postgres://u:p@host:5432/timetables?sslmode=disable"},
		{"postgresql://host/old", "/new", "postgresql://host/new"},
		{"u@host:5432/old", "timetables", "postgres://u@host:5432/timetables"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithDBName_Invalid(t *testing.T) {
	_, err := WithDBName("", "x")
	assert.Error(t, err)

	_, err = WithDBName("mysql://host/db", "x")
	assert.Error(t, err)
}
