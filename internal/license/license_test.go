package license

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOpen_AllowList(t *testing.T) {
	for _, id := range []string{
		"CC BY 4.0",
		"CC-BY-SA-4.0",
		"cc_by_nc_4.0",
		"CC BY-NC-SA 3.0",
		"CC BY-ND",
		"CC BY-NC-ND 4.0 International",
		"CC0 1.0",
		"CC0",
		"Public Domain Mark",
		"ODC-BY 1.0",
		"ODC ODbL",
		"odc_pddl",
		"MIT",
		"Apache-2.0",
		"Standard Access",
		"Etalab Open License 2.0",
	} {
		t.Run(id, func(t *testing.T) {
			assert.True(t, IsOpen(id))
			assert.True(t, IsOpen(strings.ToUpper(id)))
			assert.True(t, IsOpen(strings.ToLower(id)))
		})
	}
}

func TestIsOpen_Phrases(t *testing.T) {
	for _, text := range []string{
		"This work is licensed under a Creative Commons Attribution licence.",
		"Released under the Statistics Canada Open Licence.",
		"Données publiées sous Licence Ouverte.",
		"The Library of Congress is not aware of any copyright in the materials.",
		"No known restrictions on publication.",
		"Access: (A) openly available for all users",
		"Käyttöoikeus: (A) vapaasti käytettävissä",
		"A United States Government Work",
	} {
		assert.True(t, IsOpen(text), text)
	}
}

func TestIsOpen_Rejects(t *testing.T) {
	assert.False(t, IsOpen(""))
	assert.False(t, IsOpen("   "))
	assert.False(t, IsOpen("<p></p>"))
	assert.False(t, IsOpen("All rights reserved"))
	assert.False(t, IsOpen("Proprietary"))
	assert.False(t, IsOpen("Restricted access: apply to the data custodian"))
	assert.False(t, IsOpen("(D) käyttöön vain tutkijan luvalla"))
}

func TestIsOpen_StripsMarkup(t *testing.T) {
	for _, id := range []string{"CC BY 4.0", "All rights reserved", "CC0 1.0", "Proprietary"} {
		wrapped := "<p>" + id + "</p>"
		assert.Equal(t, IsOpen(id), IsOpen(wrapped), wrapped)
	}
	assert.True(t, IsOpen("<div>\n  <span>CC   BY</span>\n</div>"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "cc-by-4.0", Canonical("CC BY 4.0"))
	assert.Equal(t, "cc-by-sa", Canonical("cc_by_SA"))
}
