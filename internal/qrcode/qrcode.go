// Package qrcode renders the hub's join URL as a QR code for GET
// /api/qrcode (§6). It is a thin wrapper around github.com/skip2/go-qrcode,
// named by the spec as an external collaborator carrying no hard
// engineering of its own.
package qrcode

import (
	"encoding/base64"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"

	"github.com/pkg/errors"
	"github.com/sameergiri/relayhub/pkg/utils"
)

// Result is the JSON-facing shape of GET /api/qrcode.
type Result struct {
	QRCode string `json:"qrCode"`
	URL    string `json:"url"`
	IP     string `json:"ip"`
}

const qrPixelSize = 256

// Generate builds the join URL for this host/port (optionally scoped to a
// session code) and encodes it as a base64 PNG data URL.
func Generate(port int, sessionCode string) (Result, error) {
	ip := utils.GetLocalIP()
	url := fmt.Sprintf("http://%s:%d", ip, port)
	if sessionCode != "" {
		url += "?session=" + sessionCode
	}

	png, err := goqrcode.Encode(url, goqrcode.Medium, qrPixelSize)
	if err != nil {
		return Result{}, errors.Wrap(err, "qrcode: encode")
	}

	return Result{
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		URL:    url,
		IP:     ip,
	}, nil
}
