package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestSimulatedResponsesSatisfySchemas(t *testing.T) {
	for _, task := range Tasks() {
		spec := taskRegistry[task]
		require.NoError(t, spec.validate(spec.simulated), "canned response for %s", task)
	}
}

func TestValidateWeeklySummaryTrend(t *testing.T) {
	valid := `{"summary":"ok","highlights":[],"trend":"improving","disclaimer":"d"}`
	require.NoError(t, validateWeeklySummary(valid))

	badTrend := `{"summary":"ok","highlights":[],"trend":"cured","disclaimer":"d"}`
	err := validateWeeklySummary(badTrend)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadModelOutput)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestSanitizeFraming(t *testing.T) {
	clean := "Headache entries clustered on short-sleep days."
	assert.Equal(t, clean, sanitizeFraming(clean))

	flagged := sanitizeFraming("You have tension headaches.")
	assert.Contains(t, flagged, NonDiagnosisDisclaimer)
	assert.Contains(t, flagged, "You have tension headaches.")
}

func TestRotatableErrorClassification(t *testing.T) {
	assert.True(t, rotatableError(&googleapi.Error{Code: 429}))
	assert.True(t, rotatableError(&googleapi.Error{Code: 403}))
	assert.False(t, rotatableError(&googleapi.Error{Code: 500}))
	assert.True(t, rotatableError(errors.New("RESOURCE EXHAUSTED: quota exceeded")))
	assert.False(t, rotatableError(errors.New("connection reset by peer")))
}
