package utils

import qrcode "github.com/skip2/go-qrcode"

// DefaultQRSize is the edge length in pixels of ticket QR images.
const DefaultQRSize = 320

// QRPNG renders content as a PNG QR code of size x size pixels using
// medium error correction.
func QRPNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
