// Package responses writes JSON bodies. Successes are the raw payload;
// failures are the flat types.ErrorBody.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// WriteError renders err with the status of its code. Untyped errors are
// internal errors; their text never reaches the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("WriteError called with nil error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.ErrorBody{Error: meta.Public, Code: string(typed.Code())}
	if meta.ShowMessage && typed.Message() != "" {
		body.Error = typed.Message()
	}
	if meta.ShowDetails {
		body.Details = typed.Details()
	}

	ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	if meta.Status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
	} else {
		logg.WarnErr(ctx, "request.rejected", err)
	}
	writeJSON(w, meta.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are gone by now; a failed encode only truncates the body
	_ = json.NewEncoder(w).Encode(payload)
}
