package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ortho.tif", "ortho.tif"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`C:\Users\ana\voo 3.tif`, "C_Users_ana_voo_3.tif"},
		{"Mapa Área 1.tif", "Mapa_Area_1.tif"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"  .hidden.tif  ", "hidden.tif"},
		{"usina#1 (2024).tif", "usina1_2024.tif"},
		{"CON.tif", "_CON.tif"},
		{"nul", "_nul"},
		{"", FallbackFilename},
		{"...", FallbackFilename},
		{"航拍.tif", "tif"},
		{"航拍", FallbackFilename},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
