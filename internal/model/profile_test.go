package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func sampleProfile() *Profile {
	return &Profile{
		UserID:  7,
		RawText: "=== cv.pdf ===\nJane Doe",
		Data: datatypes.NewJSONType(ProfileData{
			FullName: "Jane Doe",
			Email:    "jane@example.com",
			Skills:   []string{"Go", "SQL"},
			Experience: []ExperienceEntry{
				{Company: "Acme", Title: "Engineer"},
			},
		}),
	}
}

func TestMergeProfile_EmptyPatchIsIdentity(t *testing.T) {
	existing := sampleProfile()
	merged := MergeProfile(existing, 7, ProfilePatch{})

	assert.Equal(t, existing.Data.Data(), merged.Data.Data())
	assert.Equal(t, existing.RawText, merged.RawText)

	again := MergeProfile(merged, 7, ProfilePatch{})
	assert.Equal(t, merged.Data.Data(), again.Data.Data())
}

func TestMergeProfile_ExplicitValuesWin(t *testing.T) {
	existing := sampleProfile()
	empty := []string{}
	merged := MergeProfile(existing, 7, ProfilePatch{
		Email:  strPtr(""),
		Phone:  strPtr("+1 555 0100"),
		Skills: &empty,
	})

	data := merged.Data.Data()
	assert.Equal(t, "Jane Doe", data.FullName)
	assert.Equal(t, "", data.Email)
	assert.Equal(t, "+1 555 0100", data.Phone)
	assert.Empty(t, data.Skills)
	assert.Len(t, data.Experience, 1)
}

func TestMergeProfile_KeepsRawText(t *testing.T) {
	existing := sampleProfile()
	merged := MergeProfile(existing, 7, ProfilePatch{FullName: strPtr("J. Doe")})
	assert.Equal(t, existing.RawText, merged.RawText)
	assert.Equal(t, "Jane Doe", existing.Data.Data().FullName)
}

func TestMergeProfile_NilExisting(t *testing.T) {
	merged := MergeProfile(nil, 3, ProfilePatch{FullName: strPtr("Sam")})
	assert.Equal(t, uint(3), merged.UserID)
	assert.Equal(t, "Sam", merged.Data.Data().FullName)
	assert.Equal(t, "", merged.RawText)
}

func TestProfilePatch_IsEmpty(t *testing.T) {
	assert.True(t, ProfilePatch{}.IsEmpty())
	assert.False(t, ProfilePatch{Summary: strPtr("")}.IsEmpty())
}
