package whatsapp

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

const qrDataURIPrefix = "data:image/png;base64,"

// EncodeQR renders a pairing code as a PNG data URI suitable for an <img> tag.
func EncodeQR(code string) (string, error) {
	if code == "" {
		return "", errors.New("whatsapp: empty qr code")
	}
	if strings.HasPrefix(code, "data:image/") {
		return code, nil
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", errors.Wrap(err, "whatsapp: encode qr image")
	}
	return qrDataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
