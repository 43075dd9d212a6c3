package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	v := NewValidationError()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors": []}`, string(data))

	v.Add("nuisance_threshold_db", "must be at most 200", 500)
	v.Add("", "invalid JSON", nil)
	assert.EqualError(t, v, "nuisance_threshold_db must be at most 200; invalid JSON")
}
