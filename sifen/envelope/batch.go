package envelope

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/go-faster/errors"
)

// ZipEntryName is the single entry inside a batch ZIP. The async endpoint
// only accepts this exact name.
const ZipEntryName = "compressed.txt"

// Batch wraps signed documents for the asynchronous receive endpoint: every
// rDE concatenated inside an un-namespaced rLoteDE, compressed, base64,
// carried in rEnvioLote/xDE. ZIP by default; legacyGzip switches to the raw
// GZip stream older deployments expect.
func Batch(signedRDEs [][]byte, dID string, legacyGzip bool) ([]byte, error) {
	if len(signedRDEs) == 0 {
		return nil, errors.New("batch has no documents")
	}

	var lote bytes.Buffer
	lote.WriteString(xmlDeclaration)
	lote.WriteString("<rLoteDE>")
	for _, rde := range signedRDEs {
		lote.WriteString(stripDeclaration(string(rde)))
	}
	lote.WriteString("</rLoteDE>")

	var packed string
	var err error
	if legacyGzip {
		packed, err = compressGzipB64(lote.Bytes())
	} else {
		packed, err = compressZipB64(lote.Bytes())
	}
	if err != nil {
		return nil, errors.Wrap(err, "compress batch")
	}
	logger.Debugf("batch of %d documents, %d bytes packed", len(signedRDEs), len(packed))

	body := fmt.Sprintf(`<rEnvioLote xmlns=%q><dId>%s</dId><xDE>%s</xDE></rEnvioLote>`,
		SIFENNamespace, dID, packed)
	return defaultShell.wrap(body), nil
}

func compressZipB64(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(ZipEntryName)
	if err != nil {
		return "", errors.Wrap(err, "create zip entry")
	}
	if _, err := w.Write(data); err != nil {
		return "", errors.Wrap(err, "write zip entry")
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrap(err, "close zip")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func compressGzipB64(data []byte) (string, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return "", errors.Wrap(err, "write gzip")
	}
	if err := gw.Close(); err != nil {
		return "", errors.Wrap(err, "close gzip")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBatchPayload reverses the batch packing, returning the rLoteDE XML.
func DecodeBatchPayload(b64 string, legacyGzip bool) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.Wrap(err, "base64 decode")
	}
	if legacyGzip {
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gr.Close() }()
		return io.ReadAll(gr)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, errors.Wrap(err, "open zip")
	}
	for _, f := range zr.File {
		if f.Name != ZipEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(err, "open zip entry")
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, errors.Errorf("zip has no %s entry", ZipEntryName)
}
