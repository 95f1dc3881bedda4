package cli

import (
	"testing"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		want binder.Parameter
	}{
		{"id:Int:42", binder.Named("id", binder.Int, "42")},
		{":id:int:42", binder.Named("id", binder.Int, "42")},
		{"1:String:hello", binder.Positional(1, binder.String, "hello")},
		{"at:Timestamp:2024-01-02T03:04:05Z", binder.Named("at", binder.Timestamp, "2024-01-02T03:04:05Z")},
		{"price:decimal:12.50", binder.Named("price", binder.Decimal, "12.50")},
		{"price:BigDecimal:1", binder.Named("price", binder.Decimal, "1")},
		{"2:Null", binder.Positional(2, binder.Null, nil)},
		{"note:String:", binder.Named("note", binder.String, "")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseParam(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamErrors(t *testing.T) {
	_, err := parseParam("id")
	assert.True(t, errs.IsConfiguration(err))

	_, err = parseParam(":Int:1")
	assert.True(t, errs.IsConfiguration(err))

	_, err = parseParam("id:Int")
	assert.True(t, errs.IsConfiguration(err))

	_, err = parseParam("id:Uuid:1")
	assert.True(t, errs.IsInvalidParameterType(err))

	_, err = parseParam("0:Int:1")
	assert.True(t, errs.IsInvalidParameterIndex(err))

	_, err = parseParam("-3:String:x")
	assert.True(t, errs.IsInvalidParameterIndex(err))
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a:Int:1", "b:Boolean:true"})
	require.NoError(t, err)
	assert.Len(t, params, 2)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	_, err = parseParams([]string{"a:Int:1", "bogus"})
	assert.Error(t, err)
}

func TestExportTarget(t *testing.T) {
	bucket, key, err := exportTarget("reports/users.json", "")
	require.NoError(t, err)
	assert.Equal(t, "reports", bucket)
	assert.Equal(t, "users.json", key)

	bucket, key, err = exportTarget("users.json", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", bucket)
	assert.Equal(t, "users.json", key)

	_, _, err = exportTarget("users.json", "")
	assert.True(t, errs.IsConfiguration(err))
}
