package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	valid := Register{FirstName: "Neil", LastName: "Strong", Email: "neil@gmail.com", Password: "password1", Username: "neil"}

	tests := []struct {
		name    string
		mutate  func(*Register)
		wantMsg string
	}{
		{name: "valid", mutate: func(*Register) {}},
		{name: "short first name", mutate: func(r *Register) { r.FirstName = "Al" }, wantMsg: "First name must be at least 3 characters"},
		{name: "long last name", mutate: func(r *Register) { r.LastName = "Armstrong" }, wantMsg: "Last name can be at most 8 characters"},
		{name: "bad email", mutate: func(r *Register) { r.Email = "neil" }, wantMsg: "Please include a valid email"},
		{name: "unsupported provider", mutate: func(r *Register) { r.Email = "neil@nasa.gov" }, wantMsg: "@gmail, @yahoo, or @hotmail"},
		{name: "short password", mutate: func(r *Register) { r.Password = "abc123" }, wantMsg: "Password must be at least 8 characters"},
		{name: "long username", mutate: func(r *Register) { r.Username = "armstrong" }, wantMsg: "Username can be at most 8 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRegister_CollectsAllErrors(t *testing.T) {
	err := Register{}.Validate()
	var errs Errors
	require.True(t, errors.As(err, &errs))
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestLogin(t *testing.T) {
	assert.NoError(t, Login{Username: "neil", Password: "x"}.Validate())
	assert.EqualError(t, Login{}.Validate(), "Please include a valid username; Please enter a password")
}

func TestUpdateDetails(t *testing.T) {
	assert.NoError(t, UpdateDetails{}.Validate(), "an empty update is allowed")
	assert.NoError(t, UpdateDetails{FirstName: "Buzz", Email: "buzz@yahoo.com"}.Validate())
	assert.Error(t, UpdateDetails{Email: "buzz@nasa.gov"}.Validate())
	assert.Error(t, UpdateDetails{OldPassword: "password1", NewPassword: "short"}.Validate())
	assert.Error(t, UpdateDetails{NewPassword: "password2"}.Validate())
	assert.NoError(t, UpdateDetails{OldPassword: "password1", NewPassword: "password2"}.Validate())
}

func TestFavorite(t *testing.T) {
	f := Favorite{Title: "t", Description: "d", Photographer: "p", URL: "https://images-assets.nasa.gov/a.jpg", MediaType: "image", NasaID: "id"}
	assert.NoError(t, f.Validate())

	bad := f
	bad.URL = "javascript:alert(1)"
	assert.EqualError(t, bad.Validate(), "URL must be an http(s) URL")

	f.Title = "  "
	assert.EqualError(t, f.Validate(), "Title is required")
}

func TestErrors_ErrNil(t *testing.T) {
	var errs Errors
	assert.Nil(t, errs.Err())
}
