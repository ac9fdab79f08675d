package png

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemia/go-sifen/sifen/sign"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestQr(t *testing.T) {
	img, err := Qr("https://ekuatia.set.gov.py/consultas-test/qr?nVersion=150")
	require.NoError(t, err)
	assert.Equal(t, pngMagic, img[:4])
}

func TestPayload(t *testing.T) {
	img, err := Payload(&sign.SignedPayload{QRURL: "https://ekuatia.set.gov.py/consultas/qr?Id=1"})
	require.NoError(t, err)
	assert.Equal(t, pngMagic, img[:4])

	_, err = Payload(&sign.SignedPayload{})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qr.png")
	err := WriteFile(path, &sign.SignedPayload{QRURL: "https://ekuatia.set.gov.py/consultas/qr?Id=1"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, data[:4])
}
