package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadValidator_OpenStructAcceptsExtras(t *testing.T) {
	v := newPayloadValidator()

	err := v.validate(ActionSaveSale, []byte(`{"total":500,"currency":"YER","note":"x"}`))
	assert.NoError(t, err)
}

func TestPayloadValidator_RejectsNegativeTotal(t *testing.T) {
	v := newPayloadValidator()

	err := v.validate(ActionSaveSale, []byte(`{"total":-5}`))
	assert.Error(t, err)
}

func TestPayloadValidator_DeleteRequiresID(t *testing.T) {
	v := newPayloadValidator()

	assert.Error(t, v.validate(ActionDeleteRecord, []byte(`{}`)))
	assert.Error(t, v.validate(ActionDeleteRecord, []byte(`{"id":""}`)))
	assert.NoError(t, v.validate(ActionDeleteRecord, []byte(`{"id":"s1"}`)))
}

func TestPayloadValidator_UnschematizedActionPasses(t *testing.T) {
	v := newPayloadValidator()

	// No schema entry for vouchers: payload is fully opaque.
	assert.NoError(t, v.validate(ActionSaveVoucher, []byte(`{"anything":1}`)))
}

func TestPayloadValidator_RejectsMalformedJSON(t *testing.T) {
	v := newPayloadValidator()

	assert.Error(t, v.validate(ActionDeleteRecord, []byte(`{broken`)))
}
