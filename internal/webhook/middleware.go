package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cashier/internal/core"
	"cashier/internal/types"
)

// MaxBodySize caps the webhook body read before verification (1 MB), the
// same limit the API applies to JSON request bodies. Transaction payloads
// with many line items run well past 64 KB.
const MaxBodySize = 1 << 20

// VerificationRecorder receives the outcome of each verification.
type VerificationRecorder interface {
	RecordVerification(ctx context.Context, accepted bool)
}

// SignatureMiddleware returns a gate that runs in front of the webhook
// handler. It buffers the raw body, verifies the signature header, and only
// then calls next with the body restored byte for byte. On any failure it
// responds 403 and next is never invoked.
//
// headerName defaults to DefaultSignatureHeader when empty. recorder may be nil.
func SignatureMiddleware(
	verifier *Verifier,
	headerName string,
	logger *slog.Logger,
	recorder VerificationRecorder,
) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultSignatureHeader
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					logger.WarnContext(ctx, "webhook rejected: body too large",
						"limit_bytes", tooLarge.Limit,
						"remote_addr", r.RemoteAddr,
					)
				} else {
					logger.WarnContext(ctx, "webhook rejected: body unreadable",
						"error", err,
					)
				}
				deny(w, r, recorder)
				return
			}

			if !verifier.Verify(body, r.Header.Get(headerName)) {
				logger.WarnContext(ctx, "webhook rejected: signature verification failed",
					"header_present", r.Header.Get(headerName) != "",
					"remote_addr", r.RemoteAddr,
				)
				deny(w, r, recorder)
				return
			}

			if recorder != nil {
				recorder.RecordVerification(ctx, true)
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, recorder VerificationRecorder) {
	if recorder != nil {
		recorder.RecordVerification(r.Context(), false)
	}
	core.Error(w, r, types.ErrAccessDenied())
}
