package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/testutil"
)

var schema = &core.Schema{
	Name: "test",
	Fields: []core.Field{
		{Name: "URL", Type: core.FieldTypeString, Required: true},
		{Name: "MaxRetries", Type: core.FieldTypeInt},
		{Name: "TLS", Type: core.FieldTypeBool},
		{Name: "ConnectTimeout", Type: core.FieldTypeDuration},
	},
}

func TestValidateFactory(t *testing.T) {
	tests := []struct {
		name      string
		props     map[string]string
		violation []string
	}{
		{"valid", map[string]string{"URL": "x", "MaxRetries": "3", "TLS": "true", "ConnectTimeout": "5s"}, nil},
		{"missing required", map[string]string{"TLS": "false"}, []string{"URL"}},
		{"bad types", map[string]string{"URL": "x", "MaxRetries": "many", "ConnectTimeout": "soon"}, []string{"MaxRetries", "ConnectTimeout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewFactory(tt.props)
			err := ValidateFactory(schema, f)
			if tt.violation == nil {
				require.NoError(t, err)
				return
			}

			var verr *Error
			require.ErrorAs(t, err, &verr)
			got := make([]string, len(verr.Violations))
			for i, v := range verr.Violations {
				got[i] = v.Property
			}
			assert.Equal(t, tt.violation, got)
		})
	}

	assert.NoError(t, ValidateFactory(nil, testutil.NewFactory(nil)))
}

func TestValidateProperties(t *testing.T) {
	err := ValidateProperties(schema, core.Properties{
		{Name: "url", Value: "x"},
		{Name: "tls", Value: "maybe"},
		{Name: "Unknown", Value: "anything"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
	assert.NotContains(t, err.Error(), "Unknown")
}
