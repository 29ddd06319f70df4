package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryType_Valid(t *testing.T) {
	assert.True(t, TypeProfile.Valid())
	assert.True(t, TypeEpisodic.Valid())
	assert.True(t, TypeSemantic.Valid())
	assert.False(t, MemoryType("").Valid())
	assert.False(t, MemoryType("procedural").Valid())
}

func TestAddInput_Validate(t *testing.T) {
	valid := AddInput{
		UserID:  "u1",
		AppName: "app1",
		Type:    TypeProfile,
		Text:    "some text",
	}

	tests := []struct {
		name    string
		mutate  func(*AddInput)
		wantErr bool
	}{
		{"valid", func(in *AddInput) {}, false},
		{"valid with extras", func(in *AddInput) {
			in.Importance = 3
			in.Tags = []string{"a"}
			in.Source = "chat"
		}, false},
		{"missing user id", func(in *AddInput) { in.UserID = "" }, true},
		{"missing app name", func(in *AddInput) { in.AppName = "" }, true},
		{"empty text", func(in *AddInput) { in.Text = "" }, true},
		{"whitespace text", func(in *AddInput) { in.Text = " \t\n " }, true},
		{"invalid type", func(in *AddInput) { in.Type = "procedural" }, true},
		{"negative importance", func(in *AddInput) { in.Importance = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			err := in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
