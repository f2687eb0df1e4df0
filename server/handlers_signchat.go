package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"github.com/signchat/chat-relay/signchat"
	"github.com/signchat/chat-relay/telemetry"
)

// maxBodyBytes bounds request bodies accepted by the proxy endpoints.
const maxBodyBytes = 1 << 20

const (
	msgTextRequired = "El campo de texto es obligatorio"
	msgInvalidJSON  = "El cuerpo de la solicitud no es JSON válido"
	msgBodyTooLarge = "El cuerpo de la solicitud es demasiado grande"
)

// proxyMessages are the user-facing errors of one proxy endpoint.
type proxyMessages struct {
	unavailable string // upstream answered with a non-success status
	failed      string // upstream unreachable or its answer unusable
}

var (
	txtToImgMessages = proxyMessages{
		unavailable: "Fallo en el intento de conectarse con el microservicio de traducción",
		failed:      "no se puede traducir a LSC",
	}
	imgToTxtMessages = proxyMessages{
		unavailable: "Fallo la comunicación con el microservicio",
		failed:      "no se pudo traducir de imagen a texto",
	}
	keyboardMessages = proxyMessages{
		unavailable: "Fallo en el intento de conectar con el microservicio",
		failed:      "No se pudo obtener el teclado LSC",
	}
)

// HandleTextToImage translates {"text": ...} into sign images.
func (h *Handlers) HandleTextToImage(w http.ResponseWriter, r *http.Request) {
	var text any
	switch bodyKind(r) {
	case "json":
		var body signchat.TextToImageRequest
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		if len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if !json.Valid(raw) || dec.Decode(&body) != nil {
				writeJSON(w, http.StatusBadRequest, apiError{Error: msgTextRequired})
				return
			}
		}
		text = body.Text
	case "form":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		text = r.PostFormValue("text")
	}

	res, err := h.signchat.TextToImage(r.Context(), text)
	if err != nil {
		h.writeProxyError(w, r, err, txtToImgMessages)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleImageToText forwards the request body to the image-to-text translator
// and relays its JSON answer untouched.
func (h *Handlers) HandleImageToText(w http.ResponseWriter, r *http.Request) {
	payload := json.RawMessage("{}")
	switch bodyKind(r) {
	case "json":
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				writeJSON(w, http.StatusBadRequest, apiError{Error: msgInvalidJSON})
				return
			}
			payload = raw
		}
	case "form":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
			return
		}
		fields := lo.MapValues(r.PostForm, func(v []string, _ string) string { return v[0] })
		b, err := json.Marshal(fields)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
			return
		}
		payload = b
	}

	res, err := h.signchat.ImageToText(r.Context(), payload)
	if err != nil {
		h.writeProxyError(w, r, err, imgToTxtMessages)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res)
}

// HandleKeyboard returns the sign keyboard markup with its asset links
// pointing at the public translator host.
func (h *Handlers) HandleKeyboard(w http.ResponseWriter, r *http.Request) {
	html, err := h.signchat.KeyboardMarkup(r.Context())
	if err != nil {
		h.writeProxyError(w, r, err, keyboardMessages)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

func (h *Handlers) writeProxyError(w http.ResponseWriter, r *http.Request, err error, msgs proxyMessages) {
	status := signchat.StatusFor(err)
	body := apiError{Error: msgs.failed}

	var (
		ve *signchat.ValidationError
		ue *signchat.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		body.Error = msgTextRequired
	case errors.As(err, &ue) && !ue.Network():
		body.Error = msgs.unavailable
		body.Detail = lo.ToPtr(ue.Detail)
	default:
		telemetry.LoggerWithCorr(r.Context()).Error("translation proxy failed",
			slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	}
	writeJSON(w, status, body)
}

// readBody reads the bounded request body, answering 413 when it is too large.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: msgBodyTooLarge})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: msgInvalidJSON})
		return nil, false
	}
	return raw, true
}
