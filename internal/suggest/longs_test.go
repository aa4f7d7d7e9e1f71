package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLongS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fuccefsful", "successful"},
		{"clof'd", "clof'd"},
		{"fatisfaction", "satisfaction"},
		{"crofs-stitch", "cross-stitch"},
		{"fong", "song"},
		{"ufe", "use"},
		{"prefs", "press"},
		{"fubftitute", "substitute"},
		{"leaf-blower", "leaf-blower"},
		{"half", "half"},
		{"Fit", "Fit"},
		{"theſletter", "thesletter"},
		{"offer", "offer"},
		{"", ""},
		{"f", "f"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLongS(tt.in))
		})
	}
}

func TestNormalizeLongS_Idempotent(t *testing.T) {
	for _, w := range []string{"half", "leaf-blower", "Fit", "successful", "clof'd"} {
		assert.Equal(t, w, NormalizeLongS(w))
		assert.Equal(t, NormalizeLongS(w), NormalizeLongS(NormalizeLongS(w)))
	}
}

func TestRestoreLongS(t *testing.T) {
	assert.Equal(t, "ſucceſsful", RestoreLongS("fuccefsful"))
	assert.Equal(t, "half", RestoreLongS("half"))
}
