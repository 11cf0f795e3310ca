package receiver

import (
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// OTLP/HTTP content types.
const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// HTTPHandler returns the OTLP/HTTP handler for POST /v1/logs. Request and
// response bodies are binary protobuf or protojson according to the request's
// Content-Type, optionally gzip-compressed. Bodies larger than maxBody bytes
// are rejected with 413.
func (r *Receiver) HTTPHandler(maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if ct != ContentTypeProtobuf && ct != ContentTypeJSON {
			http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
			return
		}

		body := io.Reader(http.MaxBytesReader(w, req.Body, maxBody))
		if req.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(body)
			if err != nil {
				writeStatus(w, ct, http.StatusBadRequest, codes.InvalidArgument, "invalid gzip body")
				return
			}
			defer zr.Close()
			body = io.LimitReader(zr, maxBody+1)
		}

		raw, err := io.ReadAll(body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeStatus(w, ct, http.StatusRequestEntityTooLarge, codes.InvalidArgument, "request body too large")
				return
			}
			writeStatus(w, ct, http.StatusBadRequest, codes.InvalidArgument, "read body: "+err.Error())
			return
		}
		if int64(len(raw)) > maxBody {
			writeStatus(w, ct, http.StatusRequestEntityTooLarge, codes.InvalidArgument, "request body too large")
			return
		}

		var exp collogspb.ExportLogsServiceRequest
		if ct == ContentTypeJSON {
			err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(raw, &exp)
		} else {
			err = proto.Unmarshal(raw, &exp)
		}
		if err != nil {
			r.metrics.Export(TransportHTTP, false, 0)
			writeStatus(w, ct, http.StatusBadRequest, codes.InvalidArgument, "decode: "+err.Error())
			return
		}

		if err := r.Ingest(req.Context(), &exp, TransportHTTP); err != nil {
			writeStatus(w, ct, http.StatusBadRequest, codes.InvalidArgument, err.Error())
			return
		}
		writeMessage(w, ct, http.StatusOK, &collogspb.ExportLogsServiceResponse{})
	})
}

// writeStatus writes a google.rpc.Status body, as OTLP/HTTP clients expect on
// failure.
func writeStatus(w http.ResponseWriter, ct string, httpCode int, code codes.Code, msg string) {
	writeMessage(w, ct, httpCode, status.New(code, msg).Proto())
}

func writeMessage(w http.ResponseWriter, ct string, httpCode int, m proto.Message) {
	var (
		b   []byte
		err error
	)
	if ct == ContentTypeJSON {
		b, err = protojson.Marshal(m)
	} else {
		b, err = proto.Marshal(m)
	}
	if err != nil {
		slog.Error("receiver: encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(httpCode)
	w.Write(b) //nolint:errcheck
}
