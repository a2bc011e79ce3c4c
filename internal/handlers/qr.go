package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xao-fun/xao-go/internal/qr"
)

const maxQRData = 2048

type QRHandler struct {
	defaultData string
	logger      *slog.Logger
}

func NewQRHandler(defaultData string, logger *slog.Logger) *QRHandler {
	if defaultData == "" {
		defaultData = qr.DefaultContent
	}
	return &QRHandler{defaultData: defaultData, logger: logger}
}

// Generate handles GET /v1/qr?data=<content>&size=<px per module>&level=<L|M|Q|H>.
func (h *QRHandler) Generate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := q.Get("data")
	if data == "" {
		data = h.defaultData
	}
	if len(data) > maxQRData {
		jsonError(w, "data too long", http.StatusBadRequest)
		return
	}

	opts := qr.DefaultOptions()
	if s := q.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > qr.MaxModuleSize {
			jsonError(w, "size must be between 1 and "+strconv.Itoa(qr.MaxModuleSize), http.StatusBadRequest)
			return
		}
		opts.ModuleSize = n
	}
	level, err := qr.ParseLevel(q.Get("level"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts.Level = level

	png, err := qr.Encode(data, opts)
	if err != nil {
		h.logger.Warn("qr encode failed", "err", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}
