package notify

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// EncodeQRPNG renders a QR payload to a base64 PNG so UI clients can
// display the code without a client-side QR library.
func EncodeQRPNG(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
