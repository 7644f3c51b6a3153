package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type form struct {
		Email    string `form:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		Ignored  string `json:"-" validate:"required"`
	}

	tests := []struct {
		name       string
		in         form
		wantFields map[string]string
	}{
		{
			name: "valid",
			in:   form{Email: "a@b.cd", Password: "pwd", Ignored: "x"},
		},
		{
			name:       "required",
			in:         form{Ignored: "x"},
			wantFields: map[string]string{"email": requiredText, "password": requiredText},
		},
		{
			name:       "bad email",
			in:         form{Email: "lol", Password: "pwd", Ignored: "x"},
			wantFields: map[string]string{"email": emailText},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(validate, translator, tt.in)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			vErr, ok := errors.Cause(err).(*ValidationError)
			require.True(t, ok)
			assert.Equal(t, "invalid data", vErr.Error())
			assert.Equal(t, tt.wantFields, vErr.FieldErrors())
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Admin@Test.cd", CleanString("  Admin@Test.cd\n"))
	assert.Equal(t, "admin@test.cd", CleanString("  Admin@Test.cd\n", true))
}

func TestHasAnySuffix(t *testing.T) {
	assert.True(t, HasAnySuffix("marks.xls", ".csv", ".xls"))
	assert.False(t, HasAnySuffix("marks.XLS", ".csv", ".xls"))
	assert.False(t, HasAnySuffix("marks.xls"))
}

func TestErrors(t *testing.T) {
	assert.True(t, IsNotFound(errors.Wrap(ErrNotFound, "reading item")))
	assert.False(t, IsNotFound(errors.New("lol")))

	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("stop"), "handling request")))
	assert.False(t, IsShutdown(ErrNotFound))
}
